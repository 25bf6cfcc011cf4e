package llm

import (
	"fmt"
	"strings"

	"scamlure-lab/internal/domain/models"
)

// chatMessage is one entry in a chat-completions request
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const detectSystemPrompt = "You are a scam detection expert."

func detectPrompt(message string) string {
	return fmt.Sprintf(`Analyze the following message for scam intent.
Context: UPI fraud, bank fraud, phishing, fake offers.
Message: %q
Respond with ONLY 'true' or 'false'.`, message)
}

// detectFallbackKeywords drive the heuristic used when the model is down
var detectFallbackKeywords = []string{
	"verify", "blocked", "suspended", "upi", "win", "gift", "account",
}

func replySystemPrompt(meta models.Metadata) string {
	return fmt.Sprintf(`You are a human target of a potential scammer.
Your goal is to be a believable human persona who is slightly confused, worried, but cooperative.
DO NOT reveal you are an AI or that you suspect a scam.
Engage the scammer to keep them talking.
Ask questions that might lead them to reveal bank details, UPI IDs, or links.
Channel: %s
Language: %s
Locale: %s

IMPORTANT:
1. Provide ONLY your next single message in the conversation.
2. DO NOT write a script or dialogue for both sides.
3. DO NOT include labels like 'You:' or 'Agent:'.
4. Keep it short and realistic for the channel (e.g. 1-2 sentences for SMS).`,
		meta.Channel, meta.Language, meta.Locale)
}

func analysisPrompt(transcript string) string {
	return fmt.Sprintf(`Analyze this conversation transcript for scam intelligence:
%q

Your tasks:
1. Identify Intent: Is the scammer trying to create urgency, ask for sensitive data, or offering something too good to be true?
2. Generic Extraction: Extract any names of banks, financial apps (like UPI, WhatsApp, YONO), or specific types of sensitive data requested (OTP, CVV, PIN, passwords).
3. Dynamic Keyword Logic: Identify any specific words or phrases that convey pressure, fear, or excitement as 'suspiciousKeywords'.

Return ONLY a raw JSON object with these exact keys:
scamDetected (boolean),
extractedIntelligence (object with list values: bankAccounts, upiIds, phishingLinks, phoneNumbers, suspiciousKeywords),
agentNotes (string summary: include the intent identified and any financial entities/apps found).

DO NOT include any explanation or markdown formatting.`, transcript)
}

// buildReplyMessages assembles the chat history for a reply-mode call
func buildReplyMessages(opts GenerateOptions) []chatMessage {
	msgs := make([]chatMessage, 0, len(opts.History)+2)
	msgs = append(msgs, chatMessage{Role: "system", Content: replySystemPrompt(opts.Metadata)})

	for _, turn := range opts.History {
		role := "user"
		if turn.Role == models.RoleAgent {
			role = "assistant"
		}
		msgs = append(msgs, chatMessage{Role: role, Content: turn.Text})
	}

	if opts.Message != "" {
		msgs = append(msgs, chatMessage{Role: "user", Content: opts.Message})
	}
	return msgs
}

// buildAnalysisMessages flattens the conversation into a transcript prompt
func buildAnalysisMessages(opts GenerateOptions) []chatMessage {
	parts := make([]string, 0, len(opts.History)+1)
	for _, turn := range opts.History {
		parts = append(parts, turn.Text)
	}
	if opts.Message != "" {
		parts = append(parts, opts.Message)
	}
	transcript := strings.Join(parts, " ")

	return []chatMessage{{Role: "user", Content: analysisPrompt(transcript)}}
}

// Transcript joins the scammer-visible text of a conversation, used by the
// analysis pipeline for the defensive extraction pass.
func Transcript(history []models.ConversationTurn, message string) string {
	parts := make([]string, 0, len(history)+1)
	for _, turn := range history {
		parts = append(parts, turn.Text)
	}
	if message != "" {
		parts = append(parts, message)
	}
	return strings.Join(parts, " ")
}
