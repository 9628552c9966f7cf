package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func printSuccess(w io.Writer, msg string, args ...interface{}) {
	color.New(color.FgGreen).Fprintln(w, fmt.Sprintf(msg, args...))
}

func printError(w io.Writer, msg string, args ...interface{}) {
	color.New(color.FgRed).Fprintln(w, "Error: "+fmt.Sprintf(msg, args...))
}

func printInfo(w io.Writer, msg string, args ...interface{}) {
	color.New(color.FgCyan).Fprintln(w, fmt.Sprintf(msg, args...))
}

func printJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func printTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	bold := color.New(color.Bold)
	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		bold.Fprint(tw, h)
	}
	fmt.Fprintln(tw)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
