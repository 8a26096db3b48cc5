package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	defaultGenerationEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash-lite:generateContent"
	generationTimeout         = 15 * time.Second
	maxWordAttempts           = 3 // total attempts before falling back on a duplicate
)

// vocabularyLevels describes the expected word complexity per difficulty,
// embedded verbatim into the generation prompt.
var vocabularyLevels = map[DifficultyLevel]string{
	DifficultyEasy:   "simple, universally recognized words that are commonly used in everyday language with minimal ambiguity",
	DifficultyMedium: "words that are familiar yet require a moment of thought, often used in everyday conversation with moderate complexity",
	DifficultyHard:   "words that are less frequently used, may have multiple meanings, and require creative reasoning to deduce",
	DifficultyExpert: "words with layered meanings, subtle nuances, and clever double entendres that challenge even the most astute players",
}

// fallbackWords are served when generation fails or keeps returning
// duplicates. The fallback is not checked against the exclusion list.
var fallbackWords = map[DifficultyLevel]string{
	DifficultyEasy:   "cat",
	DifficultyMedium: "apple",
	DifficultyHard:   "elephant",
	DifficultyExpert: "encyclopedia",
}

const fallbackRiddle = "I am a mystery waiting to be solved, what am I?"

var fallbackClues = []string{
	"It is something many people encounter.",
	"It has a meaning most players would recognize.",
	"Its name starts with the same letter as the answer.",
}

// WordSource produces a word, riddle, and progressive clues for a round.
type WordSource interface {
	RequestWord(ctx context.Context, level DifficultyLevel, excludeWords []string) WordChallenge
}

// GeminiProvider calls a Gemini-style text-generation endpoint.
type GeminiProvider struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewGeminiProvider builds a provider for the given endpoint and key. An
// empty endpoint selects the default model endpoint.
func NewGeminiProvider(endpoint, apiKey string) *GeminiProvider {
	if endpoint == "" {
		endpoint = defaultGenerationEndpoint
	}
	return &GeminiProvider{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: generationTimeout},
	}
}

// RequestWord asks the generation service for a challenge, retrying up to
// maxWordAttempts times when the returned word is already in excludeWords.
// Network, status, and parse failures fall back immediately; only the
// duplicate case retries. The caller records the word into its own used-word
// tracking.
func (p *GeminiProvider) RequestWord(ctx context.Context, level DifficultyLevel, excludeWords []string) WordChallenge {
	excluded := make(map[string]struct{}, len(excludeWords))
	for _, w := range excludeWords {
		excluded[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}

	for attempt := 1; attempt <= maxWordAttempts; attempt++ {
		challenge, err := p.generate(ctx, level, excludeWords)
		if err != nil {
			logWarn("Word generation failed (attempt %d): %v, using fallback", attempt, err)
			return fallbackChallenge(level)
		}
		if _, dup := excluded[challenge.Word]; dup {
			logWarn("Generated word %q already used this session (attempt %d/%d)", challenge.Word, attempt, maxWordAttempts)
			continue
		}
		return challenge
	}

	logWarn("Duplicate-word retries exhausted, using fallback")
	return fallbackChallenge(level)
}

// generate performs one request/parse cycle against the endpoint.
func (p *GeminiProvider) generate(ctx context.Context, level DifficultyLevel, excludeWords []string) (WordChallenge, error) {
	if p.APIKey == "" {
		return WordChallenge{}, errors.New("generation API key is not configured")
	}

	payload := GenerationRequest{
		Contents: []generationContent{
			{Parts: []generationPart{{Text: buildPrompt(level, excludeWords)}}},
		},
		GenerationConfig: GenerationSettings{
			Temperature:     0.7,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 1024,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return WordChallenge{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint+"?key="+p.APIKey, bytes.NewReader(body))
	if err != nil {
		return WordChallenge{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")

	resp, err := p.Client.Do(req)
	if err != nil {
		return WordChallenge{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return WordChallenge{}, fmt.Errorf("generation API returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return WordChallenge{}, err
	}

	var parsed GenerationResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return WordChallenge{}, fmt.Errorf("decoding generation response: %w", err)
	}
	return parseChallenge(parsed)
}

// buildPrompt embeds the difficulty's vocabulary description, the exclusion
// list, and a time-based seed that discourages cached output.
func buildPrompt(level DifficultyLevel, excludeWords []string) string {
	vocabulary, ok := vocabularyLevels[level]
	if !ok {
		vocabulary = "common words used in everyday conversation"
	}

	avoidInstruction := ""
	if len(excludeWords) > 0 {
		avoidInstruction = fmt.Sprintf("Do not choose any of the following words: %s.", strings.Join(excludeWords, ", "))
	}

	return fmt.Sprintf(`Generate a word guessing game challenge with the following requirements:

1. Word Selection:
   - Choose a single word from one or more of the following categories: General Vocabulary, Nature & Animals, Verbs & Actions, Adjectives & Descriptions, Food & Drink, Objects & Things, Places & Geography, Colors & Numbers, or Emotions & Feelings.
   - The selected word should match the difficulty level: %s. %s
2. Randomness:
   - Ensure variability by considering this seed: RandomSeed: %d and give output other than what you would usually give. If the same request is made again, the word must not match your previous reply.
3. Riddle Creation:
   - Craft an engaging riddle that subtly hints at the chosen word without revealing it directly.
4. Progressive Clues:
   - Generate between 3 to 5 clues that progressively reveal more about the word, moving from a very subtle hint to a nearly revealing description.
5. Output Format:
   - Format your response as a valid JSON object with this structure:
{
  "word": "the chosen word",
  "riddle": "a clever riddle that hints at the word",
  "clues": ["first clue - subtle hint", "second clue - more specific hint", "third clue - more direct hint"]
}

Do not include any additional text or explanations outside of this JSON structure.`,
		vocabulary, avoidInstruction, time.Now().UnixMilli())
}

// parseChallenge extracts the first top-level JSON object embedded in the
// generated text; the provider is not guaranteed to return only JSON.
func parseChallenge(resp GenerationResponse) (WordChallenge, error) {
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return WordChallenge{}, errors.New(ErrorNoJSONObject)
	}
	text := resp.Candidates[0].Content.Parts[0].Text

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return WordChallenge{}, errors.New(ErrorNoJSONObject)
	}

	var challenge WordChallenge
	if err := json.Unmarshal([]byte(text[start:end+1]), &challenge); err != nil {
		return WordChallenge{}, fmt.Errorf("%s: %w", ErrorBadChallenge, err)
	}

	challenge.Word = strings.ToLower(strings.TrimSpace(challenge.Word))
	challenge.Riddle = strings.TrimSpace(challenge.Riddle)
	challenge.Clues = lo.Map(challenge.Clues, func(clue string, _ int) string {
		return strings.TrimSpace(clue)
	})
	if challenge.Word == "" || challenge.Riddle == "" || len(challenge.Clues) == 0 {
		return WordChallenge{}, errors.New(ErrorBadChallenge)
	}
	if len(challenge.Clues) > MaxClues {
		challenge.Clues = challenge.Clues[:MaxClues]
	}
	return challenge, nil
}

// fallbackChallenge returns the fixed per-difficulty word with generic
// placeholder clues and riddle.
func fallbackChallenge(level DifficultyLevel) WordChallenge {
	word, ok := fallbackWords[level]
	if !ok {
		word = "puzzle"
	}
	clues := make([]string, len(fallbackClues))
	copy(clues, fallbackClues)
	return WordChallenge{
		Word:     word,
		Riddle:   fallbackRiddle,
		Clues:    clues,
		Fallback: true,
	}
}
