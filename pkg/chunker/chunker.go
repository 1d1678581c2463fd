package chunker

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Strategy selects how text is split into chunks
type Strategy string

const (
	StrategySentence Strategy = "sentence"
	StrategyPhrase   Strategy = "phrase"
	StrategyFixed    Strategy = "fixed"

	// StrategySection groups paragraphs under a character budget. It is
	// auto-selected for resume-like documents and can be requested explicitly.
	StrategySection Strategy = "semantic_section"
)

// Words-to-tokens conversion factor used for all budget estimates.
const tokensPerWord = 1.3

const (
	defaultSentenceLink = 2
	defaultPhraseLink   = 3
)

// Chunk is one retrievable unit of a document
type Chunk struct {
	Content    string
	Ordinal    int
	Metadata   map[string]string
	TokenCount int
}

// Config holds chunker settings
type Config struct {
	Strategy     Strategy
	ChunkSize    int // token budget per chunk
	ChunkOverlap int // token overlap, fixed strategy only
	SentenceLink int // sentences linked per chunk
	PhraseLink   int // phrases linked per chunk
}

// Chunker splits documents according to a configured strategy
type Chunker struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates a chunker. Zero link counts fall back to defaults.
func New(cfg Config, logger zerolog.Logger) *Chunker {
	if cfg.SentenceLink <= 0 {
		cfg.SentenceLink = defaultSentenceLink
	}
	if cfg.PhraseLink <= 0 {
		cfg.PhraseLink = defaultPhraseLink
	}
	return &Chunker{cfg: cfg, logger: logger}
}

// Chunk splits text for the given document id. Resume-like text always uses
// the section strategy; everything else uses the configured one.
func (c *Chunker) Chunk(text, docID string) []Chunk {
	if strings.TrimSpace(text) == "" {
		c.logger.Warn().Str("doc_id", docID).Msg("Empty text provided for chunking")
		return nil
	}

	strategy := c.cfg.Strategy
	if looksLikeResume(text) {
		strategy = StrategySection
	}

	return c.ChunkWithStrategy(text, docID, strategy)
}

// ChunkWithStrategy splits text using an explicit strategy, bypassing
// auto-selection.
func (c *Chunker) ChunkWithStrategy(text, docID string, strategy Strategy) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []Chunk
	switch strategy {
	case StrategyPhrase:
		chunks = c.chunkByPhrase(text, docID)
	case StrategyFixed:
		chunks = c.chunkFixed(text, docID)
	case StrategySection:
		chunks = c.chunkSections(text, docID)
	default:
		chunks = c.chunkBySentence(text, docID)
	}

	c.logger.Debug().
		Str("doc_id", docID).
		Str("strategy", string(strategy)).
		Int("chunks", len(chunks)).
		Msg("Document chunked")

	return chunks
}

func estimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * tokensPerWord)
}

// chunkBySentence groups consecutive sentences, linking the last sentence of
// each chunk into the next one.
func (c *Chunker) chunkBySentence(text, docID string) []Chunk {
	sentences := SplitSentences(text)
	link := c.cfg.SentenceLink

	var chunks []Chunk
	ordinal := 0

	for i := 0; i < len(sentences); {
		end := i + link
		if end > len(sentences) {
			end = len(sentences)
		}
		linked := sentences[i:end]
		content := strings.Join(linked, " ")
		tokens := estimateTokens(content)

		// Over budget: revert to the single starting sentence
		if tokens > c.cfg.ChunkSize {
			linked = sentences[i : i+1]
			content = linked[0]
			tokens = estimateTokens(content)
		}

		chunks = append(chunks, Chunk{
			Content: content,
			Ordinal: ordinal,
			Metadata: map[string]string{
				"doc_id":         docID,
				"strategy":       string(StrategySentence),
				"linked_count":   strconv.Itoa(len(linked)),
				"sentence_start": strconv.Itoa(i),
				"sentence_end":   strconv.Itoa(i + len(linked) - 1),
			},
			TokenCount: tokens,
		})
		ordinal++

		i += max(1, link-1)
	}

	return chunks
}

// chunkByPhrase groups delimiter-separated phrases with the same linking
// mechanics as sentences.
func (c *Chunker) chunkByPhrase(text, docID string) []Chunk {
	parts := phraseDelimiters.Split(text, -1)
	phrases := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			phrases = append(phrases, s)
		}
	}

	link := c.cfg.PhraseLink

	var chunks []Chunk
	ordinal := 0

	for i := 0; i < len(phrases); {
		end := i + link
		if end > len(phrases) {
			end = len(phrases)
		}
		linked := phrases[i:end]
		content := strings.Join(linked, ". ")
		tokens := estimateTokens(content)

		if tokens > c.cfg.ChunkSize && len(linked) > 1 {
			linked = phrases[i : i+1]
			content = linked[0]
			tokens = estimateTokens(content)
		}

		chunks = append(chunks, Chunk{
			Content: content,
			Ordinal: ordinal,
			Metadata: map[string]string{
				"doc_id":       docID,
				"strategy":     string(StrategyPhrase),
				"linked_count": strconv.Itoa(len(linked)),
				"phrase_start": strconv.Itoa(i),
				"phrase_end":   strconv.Itoa(i + len(linked) - 1),
			},
			TokenCount: tokens,
		})
		ordinal++

		i += max(1, link-1)
	}

	return chunks
}

// chunkFixed slides a word window sized from the token budget.
func (c *Chunker) chunkFixed(text, docID string) []Chunk {
	words := strings.Fields(text)

	wordsPerChunk := int(float64(c.cfg.ChunkSize) / tokensPerWord)
	if wordsPerChunk < 1 {
		wordsPerChunk = 1
	}
	overlapWords := int(float64(c.cfg.ChunkOverlap) / tokensPerWord)
	step := wordsPerChunk - overlapWords
	if step < 1 {
		step = 1
	}

	var chunks []Chunk
	ordinal := 0

	for i := 0; i < len(words); i += step {
		end := i + wordsPerChunk
		if end > len(words) {
			end = len(words)
		}
		window := words[i:end]

		chunks = append(chunks, Chunk{
			Content: strings.Join(window, " "),
			Ordinal: ordinal,
			Metadata: map[string]string{
				"doc_id":     docID,
				"strategy":   string(StrategyFixed),
				"word_start": strconv.Itoa(i),
				"word_end":   strconv.Itoa(i + len(window) - 1),
			},
			TokenCount: len(window),
		})
		ordinal++
	}

	return chunks
}

// chunkSections greedily packs paragraphs under a character budget, keeping
// headings together with the prose that follows them.
func (c *Chunker) chunkSections(text, docID string) []Chunk {
	maxChars := c.cfg.ChunkSize

	raw := paragraphBreaks.Split(text, -1)
	paragraphs := make([]string, 0, len(raw))
	for _, p := range raw {
		if s := strings.TrimSpace(p); s != "" {
			paragraphs = append(paragraphs, s)
		}
	}

	var chunks []Chunk
	ordinal := 0

	emit := func(content string, start, end int) {
		md := map[string]string{
			"doc_id":   docID,
			"strategy": string(StrategySection),
		}
		if start >= 0 {
			md["paragraph_start"] = strconv.Itoa(start)
			md["paragraph_end"] = strconv.Itoa(end)
		}
		chunks = append(chunks, Chunk{
			Content:    content,
			Ordinal:    ordinal,
			Metadata:   md,
			TokenCount: estimateTokens(content),
		})
		ordinal++
	}

	i := 0
	for i < len(paragraphs) {
		para := paragraphs[i]

		// A paragraph over budget on its own is re-split at sentence
		// boundaries under the same budget.
		if len(para) > maxChars {
			var current strings.Builder
			for _, sent := range SplitSentences(para) {
				if current.Len() > 0 && current.Len()+len(sent)+1 > maxChars {
					emit(current.String(), -1, -1)
					current.Reset()
				}
				if current.Len() > 0 {
					current.WriteString(" ")
				}
				current.WriteString(sent)
			}
			if current.Len() > 0 {
				emit(current.String(), -1, -1)
			}
			i++
			continue
		}

		current := para
		j := i + 1
		for j < len(paragraphs) {
			candidate := current + "\n\n" + paragraphs[j]
			if len(candidate) > maxChars {
				break
			}
			current = candidate
			j++
		}

		emit(current, i, j-1)
		i = j
	}

	return chunks
}

// resumeIndicators trigger section chunking when four or more appear.
var resumeIndicators = []string{
	"experience", "education", "skills", "summary", "contact",
	"linkedin", "@", "university", "college", "degree",
	"solutions architect", "engineer", "developer", "manager",
}

func looksLikeResume(text string) bool {
	low := strings.ToLower(text)
	matches := 0
	for _, indicator := range resumeIndicators {
		if strings.Contains(low, indicator) {
			matches++
		}
	}
	return matches >= 4
}

var (
	phraseDelimiters = regexp.MustCompile(`[,;]`)
	paragraphBreaks  = regexp.MustCompile(`\n\s*\n+`)
	sentenceEnds     = regexp.MustCompile(`([.!?]+)(\s+|$)`)
)

// SplitSentences tokenizes text into sentences on terminal punctuation.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	last := 0
	for _, loc := range sentenceEnds.FindAllStringSubmatchIndex(text, -1) {
		end := loc[3] // end of punctuation group
		s := strings.TrimSpace(text[last:end])
		if s != "" {
			sentences = append(sentences, s)
		}
		last = loc[1]
	}
	if last < len(text) {
		if s := strings.TrimSpace(text[last:]); s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}
