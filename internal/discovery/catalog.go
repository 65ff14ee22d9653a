package discovery

import (
	"net/url"
	"strings"
)

// catalogEntry maps a topic key to its curated feed endpoints. The
// catalog is ordered so feed selection is deterministic under the
// feed cap.
type catalogEntry struct {
	key   string
	feeds []string
}

// feedCatalog is the static topic→feed catalog matched against the
// user profile. Default feeds are always included.
var feedCatalog = []catalogEntry{
	{"tech", []string{
		"https://feeds.feedburner.com/TechCrunch",
		"https://www.theverge.com/rss/index.xml",
	}},
	{"programming", []string{
		"https://dev.to/feed",
		"https://www.infoq.com/feed/",
	}},
	{"javascript", []string{"https://javascriptweekly.com/rss/"}},
	{"typescript", []string{"https://javascriptweekly.com/rss/"}},
	{"python", []string{"https://realpython.com/atom.xml"}},
	{"rust", []string{"https://this-week-in-rust.org/rss.xml"}},
	{"golang", []string{"https://golangweekly.com/rss/"}},
	{"ai", []string{
		"https://www.marktechpost.com/feed/",
		"https://towardsdatascience.com/feed",
	}},
	{"machine learning", []string{"https://towardsdatascience.com/feed"}},
	{"llm", []string{"https://www.marktechpost.com/feed/"}},
	{"data science", []string{"https://towardsdatascience.com/feed"}},
	{"cloud", []string{"https://aws.amazon.com/blogs/aws/feed/"}},
	{"devops", []string{"https://devops.com/feed/"}},
	{"kubernetes", []string{"https://kubernetes.io/feed.xml"}},
	{"docker", []string{"https://www.docker.com/blog/feed/"}},
	{"security", []string{"https://krebsonsecurity.com/feed/"}},
	{"startup", []string{"https://sifted.eu/feed"}},
	{"venture capital", []string{"https://venturebeat.com/feed/"}},
	{"finance", []string{"https://www.bloomberg.com/feeds/technology.rss"}},
	{"crypto", []string{"https://decrypt.co/feed"}},
	{"science", []string{"https://www.sciencedaily.com/rss/all.xml"}},
	{"design", []string{"https://www.smashingmagazine.com/feed/"}},
	{"ux", []string{"https://uxdesign.cc/feed"}},
	{"open source", []string{"https://opensource.com/feed"}},
	{"linux", []string{"https://www.phoronix.com/rss.php"}},
	{"product", []string{"https://www.producthunt.com/feed"}},
}

// defaultFeeds are included in every selection regardless of profile.
var defaultFeeds = []string{
	"https://news.google.com/rss?hl=en-US&gl=US&ceid=US:en",
	"https://news.google.com/rss/topics/CAAqJggKIiBDQkFTRWdvSUwyMHZNRGRqTVhZU0FtVnVHZ0pKVGlnQVAB?hl=en-US&gl=US&ceid=US:en",
}

const (
	searchFeedTokens   = 5
	searchFeedMinToken = 4
)

// PickFeeds selects up to maxFeeds endpoints by tokenizing the user's
// interests, skills, and role and matching them against catalog keys
// by substring in either direction. Default feeds come first, then
// catalog matches in catalog order, then per-token search feeds.
func PickFeeds(interests, skills []string, role string, maxFeeds int) []string {
	tokens := tokenize(append(append(append([]string{}, interests...), skills...), role))

	chosen := make([]string, 0, maxFeeds)
	seen := make(map[string]struct{})
	add := func(feedURL string) {
		if _, ok := seen[feedURL]; ok {
			return
		}
		seen[feedURL] = struct{}{}
		chosen = append(chosen, feedURL)
	}

	for _, feedURL := range defaultFeeds {
		add(feedURL)
	}

	for _, entry := range feedCatalog {
		if matchesKey(entry.key, tokens) {
			for _, feedURL := range entry.feeds {
				add(feedURL)
			}
		}
	}

	for _, token := range searchTokens(tokens) {
		add("https://news.google.com/rss/search?q=" + url.QueryEscape(token) + "&hl=en-US&gl=US&ceid=US:en")
	}

	if len(chosen) > maxFeeds {
		chosen = chosen[:maxFeeds]
	}
	return chosen
}

func tokenize(terms []string) []string {
	var tokens []string
	for _, term := range terms {
		for _, tok := range strings.FieldsFunc(strings.ToLower(term), func(r rune) bool {
			return r == ' ' || r == ',' || r == '/' || r == '\t'
		}) {
			if tok != "" {
				tokens = append(tokens, tok)
			}
		}
	}
	return tokens
}

// matchesKey reports whether any profile token matches any word of the
// catalog key, substring in either direction.
func matchesKey(key string, tokens []string) bool {
	keyWords := strings.Fields(strings.ToLower(key))
	for _, tok := range tokens {
		for _, kw := range keyWords {
			if strings.Contains(tok, kw) || strings.Contains(kw, tok) {
				return true
			}
		}
	}
	return false
}

// searchTokens picks a few distinct tokens long enough to be useful
// query terms for per-token search feeds.
func searchTokens(tokens []string) []string {
	var picked []string
	seen := make(map[string]struct{})
	for _, tok := range tokens {
		if len(tok) < searchFeedMinToken {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		picked = append(picked, tok)
		if len(picked) == searchFeedTokens {
			break
		}
	}
	return picked
}
