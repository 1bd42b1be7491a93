package textproc

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// promptHeader encodes the correction contract for the chat model: minimal
// edits, symptom-category preservation, hotword priority, and a strict
// JSON-only output shape.
const promptHeader = `请以无思考模式工作：不要输出推理过程、解释或额外文字，只输出最终 JSON。
你是医院内的就医预问诊与院内流程问询助手。

唯一目标：对输入的中文 ASR 文本做最小必要纠错，修正明显错误，使其在医院问询场景下更自然、清晰、可理解。
重点任务：处理同音、近音误识别，并优先使用【热词列表】中的候选进行纠正。

硬规则（必须遵守）：
1) 最小编辑优先：只改明显错误片段，保留原句结构与信息，不要改写整句。
2) 语义类型守恒：不要为了命中热词而改变症状或事件类型；出血相关词必须根据上下文判断是咯血、呕血、黑便还是血便，不得随意替换。
3) 热词优先：若某处疑似同音误识别，且热词列表中存在读音相近且语义更合理的候选，优先替换为该热词。
4) 热词权重：每行可能形如「词语 权重」。权重为正时候选冲突优先选权重高者；权重为负的词禁止输出；corrected 中不得包含权重数字。
5) 部位守恒：除非原句明确出现某个身体部位，否则禁止在纠错后新增部位词；疼痛描述优先用疼痛性质词（绞痛、刺痛、闷痛、压榨痛）。
6) 无法确定时宁可保留原片段，不要替换为另一类症状。
7) 去除明显异常标点（句首孤立标点、重复逗号），但不要过度润色。

输出必须严格为 JSON（只输出 JSON，不要代码块）：
{"corrected": "...", "changed": true_or_false}
`

const (
	llmMaxRetries = 3
	llmBaseDelay  = 800 * time.Millisecond
	llmMaxTokens  = 840
)

// ChatCorrector implements the LLM interface against an OpenAI-compatible
// chat completion endpoint.
type ChatCorrector struct {
	client oai.Client
	model  string
}

// ChatOption is a functional option for NewChatCorrector.
type ChatOption func(*chatConfig)

type chatConfig struct {
	baseURL string
}

// WithBaseURL points the corrector at a non-default endpoint, e.g. a local
// Qwen deployment.
func WithBaseURL(url string) ChatOption {
	return func(c *chatConfig) { c.baseURL = url }
}

// NewChatCorrector creates the correction client.
func NewChatCorrector(apiKey, model string, opts ...ChatOption) (*ChatCorrector, error) {
	if model == "" {
		return nil, fmt.Errorf("textproc: model must not be empty")
	}
	cfg := &chatConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	return &ChatCorrector{client: oai.NewClient(reqOpts...), model: model}, nil
}

// correction is the JSON object the model must emit.
type correction struct {
	Corrected string `json:"corrected"`
	Changed   bool   `json:"changed"`
}

// Correct implements LLM with bounded retries and tolerant JSON parsing.
func (c *ChatCorrector) Correct(ctx context.Context, text string, hotwords []string) (string, bool, error) {
	prompt := buildPrompt(text, hotwords)

	var lastErr error
	for attempt := range llmMaxRetries {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case <-time.After(llmBaseDelay << (attempt - 1)):
			}
		}

		result, err := c.call(ctx, prompt)
		if err != nil {
			lastErr = err
			continue
		}
		return result.Corrected, result.Changed, nil
	}
	return "", false, fmt.Errorf("textproc: correction failed after %d attempts: %w", llmMaxRetries, lastErr)
}

func (c *ChatCorrector) call(ctx context.Context, prompt string) (*correction, error) {
	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(prompt),
		},
		Temperature:         param.NewOpt(0.0),
		TopP:                param.NewOpt(1.0),
		Seed:                param.NewOpt(int64(42)),
		MaxCompletionTokens: param.NewOpt(int64(llmMaxTokens)),
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("empty completion content")
	}
	result, ok := extractCorrection(content)
	if !ok {
		return nil, fmt.Errorf("no parsable JSON in %q", content)
	}
	return result, nil
}

func buildPrompt(text string, hotwords []string) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n热词列表：\n")
	for _, w := range hotwords {
		b.WriteString("- ")
		b.WriteString(w)
		b.WriteByte('\n')
	}
	b.WriteString("\n请修正的原句：\n'")
	b.WriteString(text)
	b.WriteString("'\n")
	return b.String()
}

var (
	jsonFence = regexp.MustCompile("(?is)```json\\s*(.*?)\\s*```")
	jsonBlob  = regexp.MustCompile(`\{[\s\S]*\}`)
)

// extractCorrection parses the model output, tolerating code fences and
// surrounding prose.
func extractCorrection(content string) (*correction, bool) {
	candidates := []string{content}
	if m := jsonFence.FindStringSubmatch(content); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := jsonBlob.FindString(content); m != "" {
		candidates = append(candidates, m)
	}

	for _, cand := range candidates {
		var result correction
		if err := json.Unmarshal([]byte(cand), &result); err == nil {
			return &result, true
		}
	}
	return nil, false
}

var _ LLM = (*ChatCorrector)(nil)
