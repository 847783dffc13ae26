package index

type Posting struct {
	DocID     string
	Frequency int
	Positions []int
}

type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}

// DocVector is the term-frequency vector of one indexed document. Length is
// the number of tokens kept after analysis.
type DocVector struct {
	DocID  string
	Length int
	Terms  map[string]int
}

// CollectionFrequency sums the in-document frequencies of the list.
func (pl PostingList) CollectionFrequency() int64 {
	var cf int64
	for _, p := range pl {
		cf += int64(p.Frequency)
	}
	return cf
}
