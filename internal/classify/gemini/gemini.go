// Package gemini classifies spending notes with a Gemini model.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chitieu/internal/classify"
	"chitieu/internal/core"

	"google.golang.org/genai"
)

const (
	DefaultModel   = "gemini-2.5-flash"
	DefaultTimeout = 20 * time.Second
)

// generator is the slice of *genai.Models the classifier needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Classifier sends one prompt per fragment and normalizes the JSON answer.
type Classifier struct {
	models  generator
	model   string
	timeout time.Duration
}

var _ classify.Classifier = (*Classifier)(nil)

// New creates a Gemini backed classifier.
func New(ctx context.Context, cfg Config) (*Classifier, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini: %w: missing API key", classify.ErrUnavailable)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newClassifier(client.Models, cfg), nil
}

func newClassifier(models generator, cfg Config) *Classifier {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Classifier{models: models, model: cfg.Model, timeout: cfg.Timeout}
}

// Classify asks the model about fragment. Every failure is reported as a
// core.ClassificationError naming the fragment.
func (c *Classifier) Classify(ctx context.Context, fragment string) (core.Draft, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(buildPrompt(fragment)), responseConfig())
	if err != nil {
		return core.Draft{}, &core.ClassificationError{Fragment: fragment, Err: fmt.Errorf("generate content: %w", err)}
	}

	raw := resp.Text()
	if strings.TrimSpace(raw) == "" {
		return core.Draft{}, &core.ClassificationError{Fragment: fragment, Err: errors.New("empty response from model")}
	}

	var parsed classify.Response
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &parsed); err != nil {
		slog.WarnContext(ctx, "Unparseable model response", "fragment", fragment, "raw", raw)
		return core.Draft{}, &core.ClassificationError{Fragment: fragment, Err: fmt.Errorf("unmarshal JSON: %w", err)}
	}

	draft, err := classify.Normalize(fragment, parsed)
	if err != nil {
		return core.Draft{}, &core.ClassificationError{Fragment: fragment, Err: err}
	}
	slog.DebugContext(ctx, "Fragment classified",
		"fragment", fragment,
		"type", draft.Type,
		"category", draft.Category,
		"amount", int64(draft.Amount),
		"duration", time.Since(start))
	return draft, nil
}

func responseConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"amount":      {Type: genai.TypeNumber, Description: "Số tiền (số nguyên)."},
				"type":        {Type: genai.TypeString, Description: "Loại giao dịch: 'income', 'expense', 'saving', 'investment'."},
				"category":    {Type: genai.TypeString, Description: "Phân loại."},
				"description": {Type: genai.TypeString, Description: "Mô tả ngắn gọn."},
			},
			Required: []string{"amount", "type", "category", "description"},
		},
	}
}

func buildPrompt(fragment string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hãy phân tích câu sau đây để lấy thông tin tài chính: %q.\n\n", fragment)
	b.WriteString("Xác định loại giao dịch (type):\n" +
		"- \"income\": lương, thưởng, được cho, bán đồ, đi vay, mượn tiền...\n" +
		"- \"expense\": mua sắm, ăn uống, trả nợ, trả thẻ tín dụng...\n" +
		"- \"saving\": gửi tiết kiệm, bỏ ống heo, gửi ngân hàng...\n" +
		"- \"investment\": mua vàng, chứng khoán, coin, đất đai, đầu tư vốn...\n\n")
	b.WriteString("Phân loại (category) tương ứng:\n")
	fmt.Fprintf(&b, "- income -> %q (vay/mượn tiền -> %q)\n", core.CategoryIncome, core.CategoryLoanDebt)
	fmt.Fprintf(&b, "- saving -> %q\n", core.CategorySaving)
	fmt.Fprintf(&b, "- investment -> %q\n", core.CategoryInvestment)
	fmt.Fprintf(&b, "- trả nợ, trả thẻ, vay mượn -> %q\n", core.CategoryLoanDebt)
	fmt.Fprintf(&b, "- expense thông thường: %q, %q, %q, %q\n\n",
		core.CategoryFood, core.CategoryEntertainment, core.CategoryShopping, core.CategoryOther)
	b.WriteString("Quy tắc:\n")
	fmt.Fprintf(&b, "1. \"cafe\", \"ăn phố\", \"xem phim\" -> %q.\n", core.CategoryEntertainment)
	fmt.Fprintf(&b, "2. \"trả nợ\", \"trả tiền thẻ\", \"thanh toán thẻ tín dụng\" -> type \"expense\", category %q.\n", core.CategoryLoanDebt)
	fmt.Fprintf(&b, "3. \"vay tiền\", \"mượn tiền\", \"rút thẻ tín dụng\" -> type \"income\", category %q.\n", core.CategoryLoanDebt)
	b.WriteString("4. Chuyển đổi tiền tệ sang số nguyên (ví dụ: 30k -> 30000, 1tr5 -> 1500000).\n\n")
	b.WriteString("Return ONLY a raw JSON object. Do NOT use Markdown code fences.\n")
	return b.String()
}

// cleanModelJSON strips Markdown fences and any text around the JSON object
// in case the model ignored the instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
