// Package spanish builds front/back card content and tag suggestions from
// simple Spanish-language rules. Everything here is pure string work.
package spanish

import "strings"

// CardContent is the front/back text pair handed to the note-adding tools.
type CardContent struct {
	Front string
	Back  string
}

// FormatVocabCard builds a vocabulary card. Gender markers "m"/"el" and
// "f"/"la" annotate the translation; an example sentence goes on its own line.
func FormatVocabCard(spanish, english, example, gender string) CardContent {
	front := strings.TrimSpace(spanish)

	backParts := []string{strings.TrimSpace(english)}
	switch strings.ToLower(gender) {
	case "m", "el":
		backParts = append(backParts, "(el - masculine)")
	case "f", "la":
		backParts = append(backParts, "(la - feminine)")
	}
	if example != "" {
		backParts = append(backParts, "\nExample: "+strings.TrimSpace(example))
	}

	return CardContent{Front: front, Back: strings.Join(backParts, "\n")}
}

// FormatVerbCard builds a verb card with an optional conjugation note and a
// verb-class marker derived from the infinitive's ending.
func FormatVerbCard(infinitive, english, conjugationNotes, example string) CardContent {
	front := strings.TrimSpace(infinitive)

	backParts := []string{strings.TrimSpace(english)}
	if conjugationNotes != "" {
		backParts = append(backParts, "("+strings.TrimSpace(conjugationNotes)+")")
	}
	switch {
	case strings.HasSuffix(infinitive, "ar"):
		backParts = append(backParts, "[AR verb]")
	case strings.HasSuffix(infinitive, "er"):
		backParts = append(backParts, "[ER verb]")
	case strings.HasSuffix(infinitive, "ir"):
		backParts = append(backParts, "[IR verb]")
	}
	if example != "" {
		backParts = append(backParts, "\nExample: "+strings.TrimSpace(example))
	}

	return CardContent{Front: front, Back: strings.Join(backParts, "\n")}
}

// FormatSentenceCloze wraps the first case-sensitive occurrence of target in
// {{c1::...}} markup. If the target does not occur, the sentence is returned
// unchanged.
func FormatSentenceCloze(sentence, target string) string {
	sentence = strings.TrimSpace(sentence)
	target = strings.TrimSpace(target)
	if target == "" {
		return sentence
	}
	idx := strings.Index(sentence, target)
	if idx < 0 {
		return sentence
	}
	return sentence[:idx] + "{{c1::" + target + "}}" + sentence[idx+len(target):]
}

// VerbType classifies an infinitive by its ending: "ar", "er", "ir", or ""
// when it doesn't look like a verb. Reflexive forms (-arse etc.) classify by
// their underlying ending.
func VerbType(verb string) string {
	v := strings.ToLower(strings.TrimSpace(verb))
	switch {
	case strings.HasSuffix(v, "arse") || strings.HasSuffix(v, "ar"):
		return "ar"
	case strings.HasSuffix(v, "erse") || strings.HasSuffix(v, "er"):
		return "er"
	case strings.HasSuffix(v, "irse") || strings.HasSuffix(v, "ir"):
		return "ir"
	}
	return ""
}

// IsReflexive reports whether a verb carries the reflexive -se suffix.
func IsReflexive(verb string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(verb)), "se")
}

// SuggestTags derives tags from part of speech and verb shape, then appends
// any extra tags verbatim. Duplicates are not removed.
func SuggestTags(word, pos string, extra []string) []string {
	tags := []string{}

	switch p := strings.ToLower(pos); p {
	case "verb", "noun", "adjective", "adverb", "phrase", "expression":
		tags = append(tags, p)
		if p == "verb" {
			if vt := VerbType(word); vt != "" {
				tags = append(tags, "verb-"+vt)
			}
			if IsReflexive(word) {
				tags = append(tags, "reflexive")
			}
		}
	}

	tags = append(tags, extra...)
	return tags
}
