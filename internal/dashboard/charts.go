package dashboard

import (
	"fmt"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/dvloznov/monzo-tracker/internal/infra/sqlite"
)

func pounds(minor int64) float64 {
	return float64(minor) / 100
}

// balanceChart plots end-of-day balances per account on a shared day axis,
// carrying the last known balance across days without movement.
func balanceChart(rows []sqlite.DailyBalanceRow, accountNames map[string]string) *charts.Line {
	daySet := make(map[string]struct{})
	perAccount := make(map[string]map[string]int64)
	for _, row := range rows {
		daySet[row.Day] = struct{}{}
		if perAccount[row.AccountID] == nil {
			perAccount[row.AccountID] = make(map[string]int64)
		}
		perAccount[row.AccountID][row.Day] = row.EODBalance
	}

	days := make([]string, 0, len(daySet))
	for d := range daySet {
		days = append(days, d)
	}
	sort.Strings(days)

	accountIDs := make([]string, 0, len(perAccount))
	for id := range perAccount {
		accountIDs = append(accountIDs, id)
	}
	sort.Strings(accountIDs)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Balance Over Time"}),
		charts.WithInitializationOpts(opts.Initialization{Width: "1100px", Height: "500px"}),
	)
	line.SetXAxis(days)

	for _, id := range accountIDs {
		byDay := perAccount[id]
		series := make([]opts.LineData, 0, len(days))
		var last int64
		for _, d := range days {
			if v, ok := byDay[d]; ok {
				last = v
			}
			series = append(series, opts.LineData{Value: pounds(last)})
		}
		name := accountNames[id]
		if name == "" {
			name = id
		}
		line.AddSeries(name, series)
	}
	return line
}

// potsChart shows current pot balances as a horizontal bar chart, biggest
// first.
func potsChart(pots []sqlite.PotRow) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Current Pots"}),
		charts.WithInitializationOpts(opts.Initialization{Width: "1100px", Height: "400px"}),
	)

	names := make([]string, 0, len(pots))
	values := make([]opts.BarData, 0, len(pots))
	// Reverse so the biggest pot renders at the top after axis flip.
	for i := len(pots) - 1; i >= 0; i-- {
		names = append(names, pots[i].Name)
		values = append(values, opts.BarData{Value: pounds(pots[i].Balance)})
	}
	bar.SetXAxis(names)
	bar.AddSeries("Balance (£)", values)
	bar.XYReversal()
	return bar
}

// waterfallChart shows daily net movement on one account as a bar chart,
// gains and losses on the same axis.
func waterfallChart(accountName string, rows []sqlite.DailyNetRow) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s - Daily Net Change", accountName),
			Subtitle: "declined transactions excluded",
		}),
		charts.WithInitializationOpts(opts.Initialization{Width: "1100px", Height: "500px"}),
	)

	days := make([]string, 0, len(rows))
	values := make([]opts.BarData, 0, len(rows))
	for _, row := range rows {
		days = append(days, row.Day)
		values = append(values, opts.BarData{
			Value: pounds(row.NetChange),
			Name:  row.BiggestTx,
		})
	}
	bar.SetXAxis(days)
	bar.AddSeries("Net (£)", values)
	return bar
}

// spendingChart plots cumulative spend over time.
func spendingChart(rows []sqlite.DailySpendRow, excluded []string) *charts.Line {
	subtitle := "all categories"
	if len(excluded) > 0 {
		subtitle = "excluding: "
		for i, c := range excluded {
			if i > 0 {
				subtitle += ", "
			}
			subtitle += c
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Cumulative Spending", Subtitle: subtitle}),
		charts.WithInitializationOpts(opts.Initialization{Width: "1100px", Height: "500px"}),
	)

	days := make([]string, 0, len(rows))
	cumulative := make([]opts.LineData, 0, len(rows))
	daily := make([]opts.LineData, 0, len(rows))
	for _, row := range rows {
		days = append(days, row.Day)
		cumulative = append(cumulative, opts.LineData{Value: pounds(row.Cumulative)})
		daily = append(daily, opts.LineData{Value: pounds(row.Spent)})
	}
	line.SetXAxis(days)
	line.AddSeries("Cumulative (£)", cumulative)
	line.AddSeries("Daily (£)", daily)
	return line
}
