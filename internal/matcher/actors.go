package matcher

import "strings"

// FamilyKeywords are counted case-insensitively over category and title.
var FamilyKeywords = []string{
	"Emotet", "Qbot", "TrickBot", "Ransomware", "Phishing",
	"Malware", "APT", "Lazarus", "FIN7", "Cobalt Strike",
	"Conti", "LockBit", "BlackCat", "REvil", "DarkSide",
}

// Families returns the family keywords found in the joined fields.
func Families(category, title string) []string {
	text := Haystack(category, title)
	var out []string
	for _, kw := range FamilyKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			out = append(out, kw)
		}
	}
	return out
}

type Actor struct {
	Name    string
	Country string
	Type    string
	Lat     float64
	Lon     float64
}

var (
	northKorea = [2]float64{40.3399, 127.5101}
	russia     = [2]float64{61.5240, 105.3188}
	china      = [2]float64{35.8617, 104.1954}
	iran       = [2]float64{32.4279, 53.6880}
	vietnam    = [2]float64{14.0583, 108.2772}
)

func actor(name, country, typ string, coords [2]float64) Actor {
	return Actor{Name: name, Country: country, Type: typ, Lat: coords[0], Lon: coords[1]}
}

// KnownActors is checked in order; the first actor named in an article wins.
var KnownActors = []Actor{
	actor("Lazarus", "North Korea", "APT", northKorea),
	actor("APT28", "Russia", "APT", russia),
	actor("APT29", "Russia", "APT", russia),
	actor("APT41", "China", "APT", china),
	actor("FIN7", "Russia", "Cybercrime", russia),
	actor("Kimsuky", "North Korea", "APT", northKorea),
	actor("Sandworm", "Russia", "APT", russia),
	actor("Volt Typhoon", "China", "APT", china),
	actor("LockBit", "Unknown", "Ransomware", [2]float64{}),
	actor("Conti", "Russia", "Ransomware", russia),
	actor("BlackCat", "Unknown", "Ransomware", [2]float64{}),
	actor("Cl0p", "Russia", "Ransomware", russia),
	actor("REvil", "Russia", "Ransomware", russia),
	actor("Scattered Spider", "Unknown", "Cybercrime", [2]float64{}),
	actor("TA505", "Russia", "Cybercrime", russia),
	actor("APT32", "Vietnam", "APT", vietnam),
	actor("APT33", "Iran", "APT", iran),
	actor("APT34", "Iran", "APT", iran),
	actor("APT37", "North Korea", "APT", northKorea),
	actor("APT38", "North Korea", "APT", northKorea),
	actor("APT39", "Iran", "APT", iran),
	actor("Storm-0978", "China", "APT", china),
	actor("Mustang Panda", "China", "APT", china),
}

// FindActor returns the first known actor mentioned in title or summary.
func FindActor(title, summary string) (Actor, bool) {
	text := Haystack(title, summary)
	for _, a := range KnownActors {
		if strings.Contains(text, strings.ToLower(a.Name)) {
			return a, true
		}
	}
	return Actor{}, false
}
