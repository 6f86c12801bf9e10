package view

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"
	"strings"

	"tally/internal/core"
)

// DefaultMinFraction is the smallest link weight, as a share of the total,
// given to any category so tiny categories stay selectable.
const DefaultMinFraction = 0.04

type CategoryTotal struct {
	Name   string      `json:"name"`
	Total  core.Amount `json:"total"`
	Count  int         `json:"count"`
	Weight float64     `json:"weight"`
}

type Breakdown struct {
	Total      core.Amount     `json:"total"`
	Count      int             `json:"count"`
	Categories []CategoryTotal `json:"categories"`
}

// Aggregate sums the visible set per category, in order of first
// appearance. Each weight is max(|category total|, total*minFraction); the
// weight is for display only.
func Aggregate(visible []core.Transaction, minFraction float64) Breakdown {
	b := Breakdown{Categories: []CategoryTotal{}}
	pos := make(map[string]int)
	for _, tx := range visible {
		name := core.CategoryOrDefault(tx.Category)
		i, ok := pos[name]
		if !ok {
			i = len(b.Categories)
			pos[name] = i
			b.Categories = append(b.Categories, CategoryTotal{Name: name})
		}
		b.Categories[i].Total = b.Categories[i].Total.Add(tx.Amount)
		b.Categories[i].Count++
		b.Total = b.Total.Add(tx.Amount)
		b.Count++
	}
	floor := b.Total.Float64() * minFraction
	for i := range b.Categories {
		b.Categories[i].Weight = math.Max(b.Categories[i].Total.Abs().Float64(), floor)
	}
	return b
}

// Detail lists one category's line items, largest absolute amount first.
type Detail struct {
	Category string             `json:"category"`
	Sum      core.Amount        `json:"sum"`
	Items    []core.Transaction `json:"items"`
}

func CategoryDetail(visible []core.Transaction, category string) Detail {
	name := core.CategoryOrDefault(category)
	d := Detail{Category: name, Items: []core.Transaction{}}
	for _, tx := range visible {
		if !strings.EqualFold(core.CategoryOrDefault(tx.Category), name) {
			continue
		}
		d.Items = append(d.Items, tx)
		d.Sum = d.Sum.Add(tx.Amount)
	}
	sort.SliceStable(d.Items, func(i, j int) bool {
		return d.Items[i].Amount.Abs().Cmp(d.Items[j].Amount.Abs()) > 0
	})
	return d
}

// Signature is a stable digest of what a breakdown shows for a month. It
// changes only when the rendered chart would change.
func Signature(month core.YearMonth, b Breakdown) string {
	type cat struct {
		Name  string `json:"c"`
		Total string `json:"t"`
	}
	payload := struct {
		Month string `json:"ym"`
		N     int    `json:"n"`
		Total string `json:"total"`
		Cats  []cat  `json:"cats"`
	}{Month: month.String(), N: b.Count, Total: b.Total.StringFixed()}
	for _, c := range b.Categories {
		payload.Cats = append(payload.Cats, cat{Name: c.Name, Total: c.Total.StringFixed()})
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:16])
}
