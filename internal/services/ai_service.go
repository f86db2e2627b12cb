package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

const analyzeSystemInstruction = `You are an expert assistant for the jns23lab UKK evaluation platform.
You help students understand why their server configuration or exam step failed.
You receive:
1) Exam result details (failed step: category, step_code, step_name, status, message, raw output).
2) Optional: related config snippets (e.g. Nginx config, logs) - these may be redacted for security.

Your task:
- Explain in simple terms what went wrong.
- Suggest a concrete fix (steps or config change).
- Be educational, concise, and supportive.
- Do not make up credentials or sensitive data; if something is redacted, say "check your configuration" instead.
- Answer in the same language as the user's question if possible, otherwise English.`

const assistantSystemPrompt = `You are the AI assistant of jns23lab, a DevOps and UKK evaluation platform for vocational high school students.

Your role:
- Help students understand server configuration (Proxmox, Ubuntu, Nginx, MySQL, WordPress, DNS/BIND9) and UKK exam preparation.
- Explain platform features: auto VM checking, Nginx/MySQL/DNS validation, leaderboard, learning materials, VPN access.
- Guide students on how to use jns23lab and why their configuration might have failed.
- Provide clear, step-by-step explanations. Be educational, concise, and supportive.

Rules:
- Do not provide harmful or insecure advice (e.g. disabling security, exposing credentials).
- Do not invent credentials or secrets; if something is redacted, say to check their own configuration.
- If the user uploads a screenshot (error, Nginx config, terminal), describe what you see and suggest fixes.
- Answer in the same language as the user when possible; otherwise use English.`

const defaultImageQuestion = "What do you see in this image? Please explain."

// Reply carries the assistant text plus token accounting when the model
// reports it (zero when unavailable, e.g. mid-stream).
type Reply struct {
	Text         string
	InputTokens  int32
	OutputTokens int32
}

// AIGenerator is the single external capability the gateway orchestrates:
// prompt in, text and token counts out.
type AIGenerator interface {
	GenerateAnalyze(ctx context.Context, examResultDetails []map[string]interface{}, configSnippets map[string]string) (string, error)
	GenerateChat(ctx context.Context, history []ChatMessage, message string) (Reply, error)
	GenerateChatWithImage(ctx context.Context, history []ChatMessage, message string, imageData []byte, imageFormat string) (Reply, error)
	GenerateChatStream(ctx context.Context, history []ChatMessage, message string) (*genai.GenerateContentResponseIterator, error)
}

type GeminiService struct {
	client    *genai.Client
	modelName string
}

func NewGeminiService(client *genai.Client, modelName string) *GeminiService {
	return &GeminiService{client: client, modelName: modelName}
}

// BuildAnalyzePrompt renders the analyze user prompt. Inputs are redacted
// before they are embedded.
func BuildAnalyzePrompt(examResultDetails []map[string]interface{}, configSnippets map[string]string) (string, error) {
	safeDetails := FilterSecretsFromRecords(examResultDetails)
	detailsJSON, err := json.MarshalIndent(safeDetails, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize exam result details: %w", err)
	}

	var b strings.Builder
	b.WriteString("## Failed exam steps\n")
	b.Write(detailsJSON)

	if len(configSnippets) > 0 {
		b.WriteString("\n## Related config / logs (for context)\n")
		// Keys in fixed order so the same request builds the same prompt.
		names := make([]string, 0, len(configSnippets))
		for name := range configSnippets {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteString(fmt.Sprintf("### %s\n", name))
			b.WriteString(FilterSecretsFromText(configSnippets[name]))
			b.WriteString("\n")
		}
	}

	b.WriteString("\nPlease explain why this step failed and suggest a fix.")
	return b.String(), nil
}

func (s *GeminiService) GenerateAnalyze(ctx context.Context, examResultDetails []map[string]interface{}, configSnippets map[string]string) (string, error) {
	prompt, err := BuildAnalyzePrompt(examResultDetails, configSnippets)
	if err != nil {
		return "", err
	}

	model := s.client.GenerativeModel(s.modelName)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(analyzeSystemInstruction)}}
	model.SetTemperature(0.3)
	model.SetMaxOutputTokens(2048)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("analyze generation failed: %w", err)
	}
	return responseText(resp)
}

func (s *GeminiService) GenerateChat(ctx context.Context, history []ChatMessage, message string) (Reply, error) {
	session := s.assistantSession(history)
	resp, err := session.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return Reply{}, fmt.Errorf("chat generation failed: %w", err)
	}
	return replyFromResponse(resp)
}

func (s *GeminiService) GenerateChatWithImage(ctx context.Context, history []ChatMessage, message string, imageData []byte, imageFormat string) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		message = defaultImageQuestion
	}
	session := s.assistantSession(history)
	resp, err := session.SendMessage(ctx, genai.ImageData(imageFormat, imageData), genai.Text(message))
	if err != nil {
		return Reply{}, fmt.Errorf("chat-with-image generation failed: %w", err)
	}
	return replyFromResponse(resp)
}

func (s *GeminiService) GenerateChatStream(ctx context.Context, history []ChatMessage, message string) (*genai.GenerateContentResponseIterator, error) {
	session := s.assistantSession(history)
	return session.SendMessageStream(ctx, genai.Text(message)), nil
}

// assistantSession builds a chat session seeded with the stored context
// window. Blank turns are skipped; assistant turns map to the "model" role.
func (s *GeminiService) assistantSession(history []ChatMessage) *genai.ChatSession {
	model := s.client.GenerativeModel(s.modelName)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(assistantSystemPrompt)}}
	model.SetTemperature(0.7)
	model.SetMaxOutputTokens(2048)

	session := model.StartChat()
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(content)},
		})
	}
	return session
}

func replyFromResponse(resp *genai.GenerateContentResponse) (Reply, error) {
	text, err := responseText(resp)
	if err != nil {
		return Reply{}, err
	}
	reply := Reply{Text: text}
	if resp.UsageMetadata != nil {
		reply.InputTokens = resp.UsageMetadata.PromptTokenCount
		reply.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
	}
	return reply, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from model")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no text in model response")
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no text in model response")
	}
	return b.String(), nil
}

// ResponseChunkText extracts the text delta from one streamed response chunk.
func ResponseChunkText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
