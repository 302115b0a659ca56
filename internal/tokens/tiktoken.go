package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/stewardlabs/meeting-steward/internal/core/domain"
)

// TiktokenCounter gives exact counts for the gpt-family models Ollama can
// serve (gpt-oss and friends share OpenAI's o200k vocabulary).
type TiktokenCounter struct {
	matcher    *ModelMatcher
	codecCache map[tokenizer.Encoding]tokenizer.Codec
	cacheMu    sync.RWMutex
}

// NewTiktokenCounter creates a counter for gpt-family model names.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{
		matcher:    NewModelMatcher([]string{"gpt-", "gpt", "o1", "o3", "o4"}, nil),
		codecCache: make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

func (c *TiktokenCounter) getCodec(model string) (tokenizer.Codec, error) {
	encoding := modelToEncoding(model)

	c.cacheMu.RLock()
	if cached, ok := c.codecCache[encoding]; ok {
		c.cacheMu.RUnlock()
		return cached, nil
	}
	c.cacheMu.RUnlock()

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("get tokenizer encoding: %w", err)
	}

	c.cacheMu.Lock()
	c.codecCache[encoding] = codec
	c.cacheMu.Unlock()

	return codec, nil
}

// modelToEncoding maps model names to tokenizer encodings. Ollama model
// names carry a tag suffix ("gpt-oss:20b"), so prefixes are matched on the
// bare name.
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	if name, _, ok := strings.Cut(model, ":"); ok {
		model = name
	}

	switch {
	case strings.HasPrefix(model, "gpt-3.5"), strings.HasPrefix(model, "gpt-4") && !strings.HasPrefix(model, "gpt-4o"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}

// Count counts prompt tokens, including chat framing overhead.
func (c *TiktokenCounter) Count(model string, messages []domain.ChatMessage) (int, error) {
	codec, err := c.getCodec(model)
	if err != nil {
		return 0, err
	}

	// 3 tokens per message plus 1 for the role, plus 3 for assistant
	// priming, per OpenAI's chat format accounting.
	total := 3
	for _, msg := range messages {
		total += 3 + 1
		ids, _, err := codec.Encode(msg.Content)
		if err != nil {
			return 0, fmt.Errorf("encode message: %w", err)
		}
		total += len(ids)
	}

	return total, nil
}

// SupportsModel returns true for gpt-family model names.
func (c *TiktokenCounter) SupportsModel(model string) bool {
	return c.matcher.Matches(strings.ToLower(model))
}
