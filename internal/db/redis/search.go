package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/localmart/searchd/internal/db"
	"github.com/localmart/searchd/internal/domain/search"
)

// Search runs a filtered KNN similarity search via FT.SEARCH. The filter is
// part of the FT query, so the predicate restricts the candidate set before
// the KNN top-k cut.
func (s *Store) Search(ctx context.Context, q *db.KNNQuery) ([]db.Candidate, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if len(q.Vector) != s.dim {
		return nil, fmt.Errorf("%w: got %d, index dimension is %d", db.ErrBadDimension, len(q.Vector), s.dim)
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	filterStr := buildFilter(q.Filter)

	knnPart := fmt.Sprintf("[KNN %d @__vector $BLOB]", q.K)
	var queryStr string
	if filterStr != "" {
		queryStr = fmt.Sprintf("(%s)=>%s", filterStr, knnPart)
	} else {
		queryStr = fmt.Sprintf("*=>%s", knnPart)
	}

	args := []string{
		s.indexName(), queryStr,
		"RETURN", "1", "__vector_score",
		"SORTBY", "__vector_score",
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return s.parseCandidates(raw)
}

// parseCandidates extracts ids and similarity scores from an FT.SEARCH
// reply. Reply layout is 2-stride: [total, key1, fields1, key2, fields2, ...].
func (s *Store) parseCandidates(raw []rueidis.RedisMessage) ([]db.Candidate, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	candidates := make([]db.Candidate, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		c := db.Candidate{ID: s.id(key)}
		for j := 0; j+1 < len(fields); j += 2 {
			name, err := fields[j].ToString()
			if err != nil || name != "__vector_score" {
				continue
			}
			value, err := fields[j+1].ToString()
			if err != nil {
				continue
			}
			if dist, err := strconv.ParseFloat(value, 64); err == nil {
				c.Score = max(0, 1.0-dist) // cosine distance -> similarity, clamped to [0,1]
			}
		}
		candidates = append(candidates, c)
	}

	return candidates, nil
}

// buildFilter translates the domain filter into an FT.SEARCH pre-filter
// query string. Geo uses the GEO field radius syntax, which RediSearch
// evaluates as great-circle distance.
func buildFilter(f search.Filter) string {
	if f.IsEmpty() {
		return ""
	}

	var parts []string

	if f.MinPrice() != nil || f.MaxPrice() != nil {
		minBound := "-inf"
		maxBound := "+inf"
		if f.MinPrice() != nil {
			minBound = strconv.FormatFloat(*f.MinPrice(), 'g', -1, 64)
		}
		if f.MaxPrice() != nil {
			maxBound = strconv.FormatFloat(*f.MaxPrice(), 'g', -1, 64)
		}
		parts = append(parts, fmt.Sprintf("@price:[%s %s]", minBound, maxBound))
	}

	if cats := f.Categories(); len(cats) > 0 {
		escaped := make([]string, len(cats))
		for i, c := range cats {
			escaped[i] = tagEscaper.Replace(c)
		}
		parts = append(parts, fmt.Sprintf("@category:{%s}", strings.Join(escaped, "|")))
	}

	if c := f.Circle(); c != nil {
		parts = append(parts, fmt.Sprintf("@location:[%f %f %g km]", c.Lon, c.Lat, c.RadiusKm))
	}

	if f.AvailableOnly() {
		parts = append(parts, "@available:{1}")
	}

	return strings.Join(parts, " ")
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)
