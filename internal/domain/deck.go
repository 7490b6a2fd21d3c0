package domain

// DeckEntry is one block of a markdown deck file: the phrase being learnt,
// its translation, and an optional example and note.
type DeckEntry struct {
	Phrase      string
	Translation string
	Example     string
	Note        string
}

// Enrichment returns the card material carried by the entry.
func (e DeckEntry) Enrichment() Enrichment {
	return Enrichment{
		Translation: e.Translation,
		Explanation: e.Note,
		Example:     e.Example,
	}
}
