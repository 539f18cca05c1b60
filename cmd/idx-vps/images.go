package main

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tyuio302/idx-vps/internal/catalog"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List catalog images",
	Long:  `List the built-in catalog of cloud images usable with 'idx-vps create --image'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var buf bytes.Buffer
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LABEL\tOS\tDEFAULT USER\tURL")
		for _, img := range catalog.Images() {
			fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n", img.Label, img.Family, img.Variant, img.DefaultUsername, img.URL)
		}
		w.Flush()
		fmt.Print(buf.String())
		return nil
	},
}
