package embed_data

import _ "embed"

//go:embed prompts/translate_system.tmpl
var TranslateSystemPrompt string

//go:embed prompts/translate_user.tmpl
var TranslateUserPrompt string

//go:embed models/model_details.json
var ModelDetails []byte
