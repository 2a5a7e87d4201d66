package show

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Legacy API resource type codes.
const (
	resourceANN         = "1"
	resourceWikipedia   = "6"
	resourceCrunchyroll = "28"
)

// xmlRating is a rating element whose value is element text. Character
// data only unmarshals into strings, so the value parses separately.
type xmlRating struct {
	Count int    `xml:"count,attr"`
	Value string `xml:",chardata"`
}

func (r xmlRating) scaled() int {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.Value), 64)
	if err != nil {
		return 0
	}
	return scaleRating(v)
}

// detailsXML mirrors the legacy XML payload. Only the elements the
// Record model carries are mapped; the rest of the document is ignored.
type detailsXML struct {
	XMLName xml.Name `xml:"anime"`
	ID      int      `xml:"id,attr"`
	Titles  []struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"titles>title"`
	Description  string `xml:"description"`
	EpisodeCount int    `xml:"episodecount"`
	StartDate    string `xml:"startdate"`
	EndDate      string `xml:"enddate"`
	Ratings      struct {
		Permanent xmlRating `xml:"permanent"`
		Review    xmlRating `xml:"review"`
	} `xml:"ratings"`
	Tags []struct {
		Name string `xml:"name"`
	} `xml:"tags>tag"`
	Resources []struct {
		Type       string   `xml:"type,attr"`
		Identifier []string `xml:"externalentity>identifier"`
	} `xml:"resources>resource"`
	RelatedAnime []struct {
		ID    int    `xml:"id,attr"`
		Type  string `xml:"type,attr"`
		Title string `xml:",chardata"`
	} `xml:"relatedanime>anime"`
	SimilarAnime []struct {
		ID    int    `xml:"id,attr"`
		Title string `xml:",chardata"`
	} `xml:"similaranime>anime"`
}

// ParseDetailsXML normalizes the legacy XML shape into a Record. The
// main title comes from the title element typed "main"; every other
// title element becomes an alias. Resource identifiers map onto the
// external link fields by type code.
func ParseDetailsXML(data []byte) (*Record, error) {
	var raw detailsXML
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding details XML: %w", err)
	}

	var title string
	var alts []string
	for _, t := range raw.Titles {
		value := strings.TrimSpace(t.Value)
		if value == "" {
			continue
		}
		if t.Type == "main" && title == "" {
			title = value
			continue
		}
		alts = append(alts, value)
	}

	var tags []string
	for _, t := range raw.Tags {
		if name := strings.TrimSpace(t.Name); name != "" {
			tags = append(tags, name)
		}
	}

	var annID *int
	var crunchyrollID, wikipediaID *string
	for _, res := range raw.Resources {
		id := firstIdentifier(res.Identifier)
		if id == "" {
			continue
		}
		switch res.Type {
		case resourceANN:
			if n, err := strconv.Atoi(id); err == nil && annID == nil {
				annID = &n
			}
		case resourceWikipedia:
			if wikipediaID == nil {
				wikipediaID = &id
			}
		case resourceCrunchyroll:
			if crunchyrollID == nil {
				crunchyrollID = &id
			}
		}
	}

	var beginYear, endYear *int
	if t := parseDate(raw.StartDate); t != nil {
		y := t.Year()
		beginYear = &y
	}
	var endDate = parseDate(raw.EndDate)
	if endDate != nil {
		y := endDate.Year()
		endYear = &y
	}

	return fromPayload(payload{
		externalID:         raw.ID,
		title:              title,
		altTitles:          alts,
		description:        raw.Description,
		tags:               tags,
		episodeCountNormal: raw.EpisodeCount,
		airDate:            parseDate(raw.StartDate),
		endDate:            endDate,
		beginYear:          beginYear,
		endYear:            endYear,
		rating:             raw.Ratings.Permanent.scaled(),
		voteCount:          raw.Ratings.Permanent.Count,
		avgReviewRating:    raw.Ratings.Review.scaled(),
		reviewCount:        raw.Ratings.Review.Count,
		annID:              annID,
		crunchyrollID:      crunchyrollID,
		wikipediaID:        wikipediaID,
		relations:          relationsJSON(raw),
		similar:            similarJSON(raw),
	})
}

func firstIdentifier(ids []string) string {
	for _, id := range ids {
		if v := strings.TrimSpace(id); v != "" {
			return v
		}
	}
	return ""
}

type relationEntry struct {
	ID    int    `json:"aid"`
	Title string `json:"title"`
	Type  string `json:"type,omitempty"`
}

func relationsJSON(raw detailsXML) string {
	entries := make([]relationEntry, 0, len(raw.RelatedAnime))
	for _, rel := range raw.RelatedAnime {
		entries = append(entries, relationEntry{
			ID:    rel.ID,
			Title: strings.TrimSpace(rel.Title),
			Type:  rel.Type,
		})
	}
	return encodeEntries(entries)
}

func similarJSON(raw detailsXML) string {
	entries := make([]relationEntry, 0, len(raw.SimilarAnime))
	for _, sim := range raw.SimilarAnime {
		entries = append(entries, relationEntry{
			ID:    sim.ID,
			Title: strings.TrimSpace(sim.Title),
		})
	}
	return encodeEntries(entries)
}
