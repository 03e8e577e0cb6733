package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/tinyvillage/villagehub/internal/domain/item"
	"github.com/tinyvillage/villagehub/internal/service"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// render writes v as JSON or YAML, or calls table for the table format.
func render(w io.Writer, format string, v any, table func(w io.Writer) error) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return table(w)
	}
}

func itemsTable(items []item.Item) func(io.Writer) error {
	return func(w io.Writer) error {
		if len(items) == 0 {
			_, err := fmt.Fprintln(w, "No items found.")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tTYPE\tAVAILABLE FOR\tOWNER\tIMAGES")
		for _, it := range items {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n",
				it.ID, it.Name, it.Type, it.Availability(), it.OwnerUsername, len(it.Images))
		}
		return tw.Flush()
	}
}

func itemTable(it item.Item) func(io.Writer) error {
	return func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "ID:\t%d\n", it.ID)
		fmt.Fprintf(tw, "Name:\t%s\n", it.Name)
		fmt.Fprintf(tw, "Type:\t%s\n", it.Type)
		fmt.Fprintf(tw, "Available for:\t%s\n", it.Availability())
		fmt.Fprintf(tw, "Owner:\t%s\n", it.OwnerUsername)
		fmt.Fprintf(tw, "Description:\t%s\n", strings.ReplaceAll(it.Description, "\n", " "))
		for i, img := range it.Images {
			fmt.Fprintf(tw, "Image %d:\t%s\n", i+1, img)
		}
		return tw.Flush()
	}
}

func statusTable(st service.Status) func(io.Writer) error {
	return func(w io.Writer) error {
		if !st.Authenticated && !st.Refreshable {
			_, err := fmt.Fprintln(w, "Not logged in.")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		if st.User != nil {
			fmt.Fprintf(tw, "User:\t%s (id %d)\n", st.User.Username, st.User.ID)
		}
		fmt.Fprintf(tw, "Access token:\t%s\n", presence(st.Authenticated))
		fmt.Fprintf(tw, "Refresh token:\t%s\n", presence(st.Refreshable))
		if st.ExpiresAt != nil {
			state := "valid"
			if st.Expired {
				state = "expired, will refresh on next call"
			}
			fmt.Fprintf(tw, "Expires:\t%s (%s)\n", st.ExpiresAt.Local().Format("2006-01-02 15:04:05"), state)
		}
		return tw.Flush()
	}
}

func presence(ok bool) string {
	if ok {
		return "stored"
	}
	return "absent"
}
