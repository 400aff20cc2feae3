package contracts

// ITokenManagement accumulates token usage reported by providers and
// converts it into an estimated price.
type ITokenManagement interface {
	UsedTokens(inputToken int, outputToken int)
	EstimateTokens(text string) int
	CalculateCost(providerName string, modelName string, inputToken int, outputToken int) float64
	DisplayTokens(providerName string, model string)
	DisplayEstimate(providerName string, model string, inputToken int, outputToken int)
	GetCurrentTokenUsage() (total int, input int, output int)
	ClearToken()
}
