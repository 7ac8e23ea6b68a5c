package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/MrWong99/bestiary/pkg/types"
)

// fallbackEncoding is used for models tiktoken does not know (Llama, Mistral,
// DeepSeek, ...). Its counts are close enough for a context-window preflight.
const fallbackEncoding = "cl100k_base"

// perMessageOverhead approximates the role and formatting tokens each chat
// message costs on top of its content.
const perMessageOverhead = 4

var encoders sync.Map // model name -> *tiktoken.Tiktoken (nil when unavailable)

// encoderFor returns a cached tokenizer for model, or nil when neither the
// model's own encoding nor the fallback encoding can be loaded (for example
// when the BPE files cannot be fetched).
func encoderFor(model string) *tiktoken.Tiktoken {
	if v, ok := encoders.Load(model); ok {
		tke, _ := v.(*tiktoken.Tiktoken)
		return tke
	}
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			tke = nil
		}
	}
	encoders.Store(model, tke)
	return tke
}

// EstimateTokens returns an estimate of the tokens messages would consume for
// model. It uses tiktoken when an encoding is available and otherwise falls
// back to roughly four characters per token.
func EstimateTokens(model string, messages []types.Message) int {
	tke := encoderFor(model)
	total := 0
	for _, m := range messages {
		if tke != nil {
			total += len(tke.Encode(m.Content, nil, nil))
		} else {
			total += ApproxTokens(m.Content)
		}
		total += perMessageOverhead
	}
	return total
}

// ApproxTokens is the character-based estimate used when no tokenizer is
// available: ~4 characters per token, rounded up.
func ApproxTokens(s string) int {
	return (len(s) + 3) / 4
}
