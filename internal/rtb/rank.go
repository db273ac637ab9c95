package rtb

import "github.com/samber/lo"

// Summary is the ranking of one set of responses.
type Summary struct {
	Winner              *BidResponse
	SuccessfulResponses int
	EligibleBidders     int
}

// Summarize picks the valid response with the strictly greatest bid. Equal bids keep the
// earliest one in rs, which is dispatch order. SuccessfulResponses counts HTTP 2xx
// responses whether or not they were valid.
func Summarize(rs []BidResponse) Summary {
	s := Summary{
		SuccessfulResponses: lo.CountBy(rs, func(r BidResponse) bool { return r.Success }),
	}
	valid := lo.Filter(rs, func(r BidResponse, _ int) bool { return r.IsValid && r.BidAmount != nil })
	s.EligibleBidders = len(valid)

	for i := range valid {
		if s.Winner == nil || valid[i].Bid() > s.Winner.Bid() {
			w := valid[i]
			s.Winner = &w
		}
	}
	return s
}
