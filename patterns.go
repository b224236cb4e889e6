package divisions

import "regexp"

// Room-count patterns matched against lowercased listing characteristics.
// Portuguese listings use the "T<n>" typology for bedroom count.
var (
	typologyRe  = regexp.MustCompile(`\bt(\d+)\b`)
	bedroomsRe  = regexp.MustCompile(`(\d+)\s*(?:quartos?|bedrooms?)\b`)
	bathroomsRe = regexp.MustCompile(`(\d+)\s*(?:casas?\s+de\s+banho|bathrooms?)\b`)
	banhosRe    = regexp.MustCompile(`(\d+)\s*banhos?\b`)
)

// roomCountPattern pairs a regex with the count it provides. Patterns are tried
// in order and the first one that matches a characteristic wins.
type roomCountPattern struct {
	name string
	re   *regexp.Regexp
	room string // "bedrooms" or "bathrooms"
}

var roomCountPatterns = []roomCountPattern{
	{name: "typology", re: typologyRe, room: "bedrooms"},
	{name: "bedrooms", re: bedroomsRe, room: "bedrooms"},
	{name: "bathrooms", re: bathroomsRe, room: "bathrooms"},
	{name: "banhos", re: banhosRe, room: "bathrooms"},
}
