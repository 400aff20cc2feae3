package token_management

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/morler/repo-translate/constants/lipgloss"
	"github.com/morler/repo-translate/embed_data"
	"github.com/morler/repo-translate/token_management/contracts"
)

// bytesPerToken approximates how many ASCII bytes make up one token.
const bytesPerToken = 4

// tokenManager is safe for concurrent use by gateway workers.
type tokenManager struct {
	mutex           sync.Mutex
	usedToken       int
	usedInputToken  int
	usedOutputToken int
}

type details struct {
	MaxTokens                  int     `json:"max_tokens"`
	MaxInputTokens             int     `json:"max_input_tokens"`
	MaxOutputTokens            int     `json:"max_output_tokens"`
	InputCostPerMillionTokens  float64 `json:"input_cost_per_million_tokens,omitempty"`
	OutputCostPerMillionTokens float64 `json:"output_cost_per_million_tokens,omitempty"`
	Mode                       string  `json:"mode"`
}

type Models struct {
	ModelDetails map[string]details `json:"models"`
}

var (
	modelsOnce sync.Once
	models     Models
	modelsErr  error
)

// NewTokenManager creates a new token manager
func NewTokenManager() contracts.ITokenManagement {
	return &tokenManager{}
}

// UsedTokens accumulates the token count for the session.
func (tm *tokenManager) UsedTokens(inputToken int, outputToken int) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	tm.usedInputToken += inputToken
	tm.usedOutputToken += outputToken
	tm.usedToken += inputToken + outputToken
}

// EstimateTokens approximates the token count of text: one token per four
// ASCII bytes and one per non-ASCII rune.
func (tm *tokenManager) EstimateTokens(text string) int {
	ascii, wide := 0, 0
	for i := 0; i < len(text); {
		if text[i] < utf8.RuneSelf {
			ascii++
			i++
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		wide++
		i += size
	}
	return (ascii+bytesPerToken-1)/bytesPerToken + wide
}

func (tm *tokenManager) DisplayTokens(providerName string, model string) {
	total, input, output := tm.GetCurrentTokenUsage()
	cost := tm.CalculateCost(providerName, model, input, output)

	tokenInfo := fmt.Sprintf("Token Used: %d (in %d / out %d) - Cost: %.6f $ - Model: %s", total, input, output, cost, model)
	fmt.Println(lipgloss.BoxStyle.Render(tokenInfo))
}

// DisplayEstimate prints a preview estimate without touching the counters.
func (tm *tokenManager) DisplayEstimate(providerName string, model string, inputToken int, outputToken int) {
	cost := tm.CalculateCost(providerName, model, inputToken, outputToken)

	info := fmt.Sprintf("Estimated tokens: %d input / %d output - Estimated cost: %.6f $ - Model: %s",
		inputToken, outputToken, cost, model)
	if _, err := getModelDetails(providerName, model); err != nil {
		info += "\n" + lipgloss.Muted.Render("no price data for this model")
	}
	fmt.Println(lipgloss.BoxStyle.Render(info))
}

func (tm *tokenManager) GetCurrentTokenUsage() (total int, input int, output int) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	return tm.usedToken, tm.usedInputToken, tm.usedOutputToken
}

func (tm *tokenManager) ClearToken() {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	tm.usedToken = 0
	tm.usedInputToken = 0
	tm.usedOutputToken = 0
}

func (tm *tokenManager) CalculateCost(providerName string, modelName string, inputToken int, outputToken int) float64 {
	modelDetails, err := getModelDetails(providerName, modelName)
	if err != nil {
		return 0
	}
	inputCost := float64(inputToken) * modelDetails.InputCostPerMillionTokens / 1000000.0
	outputCost := float64(outputToken) * modelDetails.OutputCostPerMillionTokens / 1000000.0
	return inputCost + outputCost
}

func getModelDetails(providerName string, modelName string) (details, error) {
	modelsOnce.Do(func() {
		models = Models{ModelDetails: make(map[string]details)}
		modelsErr = json.Unmarshal(embed_data.ModelDetails, &models)
	})
	if modelsErr != nil {
		return details{}, fmt.Errorf("decode model details: %w", modelsErr)
	}

	modelName = strings.ToLower(modelName)
	model, exists := models.ModelDetails[modelName]
	if !exists {
		return details{}, fmt.Errorf("model details price with name '%s' not found for provider '%s'", modelName, strings.ToLower(providerName))
	}
	return model, nil
}
