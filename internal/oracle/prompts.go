package oracle

import (
	"fmt"
	"strings"

	"github.com/conorfennell/growfluent/internal/domain"
)

const systemPrompt = `You are a patient language tutor. Always answer with a single JSON object and nothing else.`

func enrichPrompt(phrase string, lang domain.Language, native string) string {
	return fmt.Sprintf(`Analyse the phrase %q for a learner of %s whose native language is %s.
Return JSON with the keys:
  translation (string, required), explanation, example, exampleTranslation,
  synonyms: [{term, translation, nuance, register, frequency, example, exampleTranslation}],
  antonyms: [{term, translation}],
  variants: [{type, term, note}],
  derivatives: [{term, type, translation}],
  masteryPrompts: [{target, translation}]
Translations and explanations are written in %s.`, phrase, lang.DisplayName(), native, native)
}

func gradePrompt(req GradeRequest, native string, spoken bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Grade this answer.\nQuestion: %s\nExpected answer: %s\nLearner answer: %s\nTarget language: %s\nNative language: %s\n",
		req.Question, req.CorrectAnswer, req.UserAnswer, req.Language.DisplayName(), native)
	b.WriteString(`If the answer is wrong classify the error as one of translation, context, pronunciation, grammar or spelling.
Explain why it is wrong and give a new bilingual example that uses the key word naturally.
Return JSON with the keys: isCorrect (bool, required), feedback (string, required), errorType, explanation, example, exampleTranslation`)
	if spoken {
		b.WriteString(`, pronunciation: {score (0-100), clarity, intonation, feedback, syllabicBreakdown, phoneticMistakes, isSuccess}.
The learner answer is a transcript of a recording; judge pronunciation from it.`)
	} else {
		b.WriteString(".")
	}
	return b.String()
}

func examPrompt(cards []domain.Card, lang domain.Language, limit int) string {
	var words strings.Builder
	for _, c := range cards {
		fmt.Fprintf(&words, "ID:%s | Phrase:%s | Meaning:%s\n", c.ID, c.Phrase, c.Translation)
	}
	name := lang.DisplayName()
	return fmt.Sprintf(`Create a challenge of at most %d sentence exercises for a learner of %s.
Write exactly one exercise per word, using ONLY these words from the learner's dictionary:
%s
Rules:
1. Never show the key word itself; the learner has to infer it from context.
2. Do not give translations of the key word or hints in the learner's native language.
3. Allowed exercise types:
   - context: a %s sentence with a gap [____] where the key word belongs.
   - reverse: translate a full sentence into %s that uses the key word.
   - choice: a %s sentence with a gap and 4 options.
   - voice: read aloud a %s sentence that contains the key word.
4. Sentences must be natural and everyday.
Return JSON: {"exercises": [{cardId, type, question, correctAnswer, options, contextSentence}]}`,
		limit, name, words.String(), name, name, name, name)
}

func sentencePrompt(sentence, target string, lang domain.Language) string {
	return fmt.Sprintf(`Evaluate the sentence %q, which should use the word %q, in %s.
Return JSON with the keys: isCorrect (bool), containsTargetWord (bool), feedback (string), improvedVersion (string), grammarNotes (array of strings).`,
		sentence, target, lang.DisplayName())
}

func pronunciationPrompt(transcript, target string, lang domain.Language) string {
	return fmt.Sprintf(`A learner tried to say %q in %s. A speech recogniser heard: %q.
Evaluate the pronunciation. Return JSON with the keys: score (0-100, required), clarity (0-100), intonation (0-100), feedback (string, required), syllabicBreakdown (array of strings), phoneticMistakes (array of strings), isSuccess (bool, required).`,
		target, lang.DisplayName(), transcript)
}
