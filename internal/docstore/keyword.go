package docstore

import (
	"sort"
	"strings"
	"unicode"
)

// keywordField pairs a searchable payload field with its relevance weight.
// The primary content field counts double so a knowledge chunk that matches
// in its body outranks a conversation that matches only in its question.
type keywordField struct {
	name   string
	weight float32
}

var keywordFields = []keywordField{
	{name: "text", weight: 2},
	{name: "question", weight: 1},
	{name: "answer", weight: 1},
}

// fuzzyCredit is the score fraction granted to a near-miss token match.
const fuzzyCredit = 0.5

// tokenize lowercases and splits on any non-letter, non-digit rune.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// maxEdits returns the edit tolerance for a query token by length: short
// tokens must match exactly, longer ones absorb typos.
func maxEdits(token string) int {
	switch n := len(token); {
	case n <= 3:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

// keywordScore ranks a payload against the query: each query token earns the
// field weight for an exact token match, or a fuzzyCredit fraction of it for
// a match within edit tolerance. Only the best field per token counts. The
// total is normalised by the query token count so scores are comparable
// across queries.
func keywordScore(payload map[string]any, query string) float32 {
	qtokens := tokenize(query)
	if len(qtokens) == 0 {
		return 0
	}

	fieldTokens := make([][]string, len(keywordFields))
	for i, f := range keywordFields {
		if s, ok := payload[f.name].(string); ok {
			fieldTokens[i] = tokenize(s)
		}
	}

	var total float32
	for _, qt := range qtokens {
		tol := maxEdits(qt)
		var best float32
		for i, f := range keywordFields {
			for _, dt := range fieldTokens[i] {
				var credit float32
				if dt == qt {
					credit = f.weight
				} else if tol > 0 && withinEdits(qt, dt, tol) {
					credit = f.weight * fuzzyCredit
				} else {
					continue
				}
				if credit > best {
					best = credit
				}
				if best == f.weight {
					break
				}
			}
		}
		total += best
	}
	return total / float32(len(qtokens))
}

// withinEdits reports whether the Levenshtein distance between a and b is at
// most limit, bailing out early once a row's minimum exceeds the bound.
func withinEdits(a, b string, limit int) bool {
	la, lb := len(a), len(b)
	if la-lb > limit || lb-la > limit {
		return false
	}
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			d := prev[j-1] + cost
			if v := prev[j] + 1; v < d {
				d = v
			}
			if v := cur[j-1] + 1; v < d {
				d = v
			}
			cur[j] = d
			if d < rowMin {
				rowMin = d
			}
		}
		if rowMin > limit {
			return false
		}
		prev, cur = cur, prev
	}
	return prev[lb] <= limit
}

// rankByKeyword scores candidate documents against the query and returns the
// topK positive-scoring hits in descending score order. Used by backends
// whose native filtering cannot produce relevance scores.
func rankByKeyword(ids []string, payloads []map[string]any, query string, topK int) []Hit {
	hits := make([]Hit, 0, len(ids))
	for i, id := range ids {
		score := keywordScore(payloads[i], query)
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{
			ID:       id,
			Score:    score,
			Text:     hitText(payloads[i]),
			Metadata: hitMetadata(payloads[i]),
			Payload:  payloads[i],
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
