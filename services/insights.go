package services

import (
	"fmt"
	"io"
	"os"
	"strings"

	"walla-bot/models"
	"walla-bot/utils"
)

type InsightService struct {
	logger *utils.Logger
	out    io.Writer
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger, out: os.Stdout}
}

// Generate summarises a finished run. Price statistics cover novel listings only.
func (s *InsightService) Generate(run *models.RunReport) *models.InsightReport {
	report := &models.InsightReport{NovelByTerm: make(map[string]int)}
	if run == nil {
		return report
	}

	report.TotalTerms = len(run.Terms)
	for _, tr := range run.Terms {
		if tr.Failed() {
			report.FailedTerms++
			continue
		}
		report.TotalExtracted += tr.Extracted
		report.TotalDuplicates += tr.Duplicate
	}

	report.TotalNovel = len(run.Novel)
	if len(run.Novel) == 0 {
		return report
	}

	report.MinPrice = run.Novel[0].Price
	report.MaxPrice = run.Novel[0].Price
	report.Cheapest = run.Novel[0]
	var total float64
	for _, l := range run.Novel {
		report.NovelByTerm[l.SearchTerm]++
		total += l.Price
		if l.Price < report.MinPrice {
			report.MinPrice = l.Price
			report.Cheapest = l
		}
		if l.Price > report.MaxPrice {
			report.MaxPrice = l.Price
		}
	}
	report.AveragePrice = round2(total / float64(len(run.Novel)))
	report.MinPrice = round2(report.MinPrice)
	report.MaxPrice = round2(report.MaxPrice)

	return report
}

func (s *InsightService) Print(run *models.RunReport, r *models.InsightReport) {
	w := s.out
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  WALLAPOP RUN SUMMARY\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Search terms       : \033[1m%d\033[0m (%d failed)\n", r.TotalTerms, r.FailedTerms)
	fmt.Fprintf(w, "  Listings extracted : \033[1m%d\033[0m\n", r.TotalExtracted)
	fmt.Fprintf(w, "  New listings       : \033[1;32m%d\033[0m\n", r.TotalNovel)
	fmt.Fprintf(w, "  Already seen       : \033[1m%d\033[0m\n", r.TotalDuplicates)
	fmt.Fprintln(w)

	// Per term
	if run != nil && len(run.Terms) > 0 {
		fmt.Fprintf(w, "\033[1;33m  By Search Term\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		for _, tr := range run.Terms {
			if tr.Failed() {
				fmt.Fprintf(w, "  %-30s \033[1;31mfailed\033[0m\n", truncate(tr.Term, 28))
				continue
			}
			fmt.Fprintf(w, "  %-30s %s (%d new / %d)\n",
				truncate(tr.Term, 28), strings.Repeat("█", tr.Novel), tr.Novel, tr.Extracted)
		}
		fmt.Fprintln(w)
	}

	// Price Stats
	fmt.Fprintf(w, "\033[1;33m  Price Statistics (new listings)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.TotalNovel > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m%.2f€\033[0m\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : \033[1;32m%.2f€\033[0m\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : \033[1;32m%.2f€\033[0m\n", r.MaxPrice)
	} else {
		fmt.Fprintf(w, "  No new listings in this run\n")
	}
	fmt.Fprintln(w)

	if r.Cheapest != nil {
		fmt.Fprintf(w, "\033[1;33m  Cheapest New Listing\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.Cheapest.Title, 50))
		fmt.Fprintf(w, "  Link  : %s\n", r.Cheapest.Link)
		fmt.Fprintf(w, "  Price : \033[1;32m%.2f€\033[0m\n", r.Cheapest.Price)
		fmt.Fprintln(w)
	}

	// Delivery
	if run != nil && r.TotalNovel > 0 {
		fmt.Fprintf(w, "\033[1;33m  Delivery\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		if run.ExportPath != "" {
			fmt.Fprintf(w, "  CSV   : %s\n", run.ExportPath)
		} else {
			fmt.Fprintf(w, "  CSV   : \033[1;31mfailed\033[0m (%v)\n", run.ExportErr)
		}
		if run.MirrorErr != nil {
			fmt.Fprintf(w, "  DB    : \033[1;31mfailed\033[0m (%v)\n", run.MirrorErr)
		}
		if run.NotifyErr != nil {
			fmt.Fprintf(w, "  Email : \033[1;31mfailed\033[0m (%v)\n", run.NotifyErr)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
