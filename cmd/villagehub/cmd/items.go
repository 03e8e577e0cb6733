package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tinyvillage/villagehub/internal/domain/item"
)

var (
	itemsMine   bool
	itemsFilter string

	itemName        string
	itemDescription string
	itemType        string
	itemTrade       bool
	itemDonation    bool
	itemImages      []string
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Browse and manage items",
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available items, or your own with --mine",
	Long: `List items. Without --mine the public catalog of items available for
trade or donation is shown and no login is needed.

--filter takes a CEL expression over the variables id, name, description,
type, is_for_trade, is_for_donation, owner and images, plus glob(pattern, s).

Examples:
  villagehub items list --filter 'type == "TOOL" && is_for_donation'
  villagehub items list --mine --filter 'glob("*lamp*", name)'`,
	Args: cobra.NoArgs,
	RunE: withApp(runItemsList),
}

var itemsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one item",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runItemsShow),
}

var itemsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "List a new item",
	Long: `List a new item. At least one --image is required.

Example:
  villagehub items create --name "Desk lamp" --description "Warm light" \
    --type furniture --trade --image lamp.jpg`,
	Args: cobra.NoArgs,
	RunE: withSession(runItemsCreate),
}

var itemsUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change an item's details",
	Long:  `Change an item's details. Only the flags given are changed.`,
	Args:  cobra.ExactArgs(1),
	RunE:  withSession(runItemsUpdate),
}

var itemsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete one of your items",
	Args:  cobra.ExactArgs(1),
	RunE:  withSession(runItemsDelete),
}

var itemsImageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage an item's images",
}

var itemsImageAddCmd = &cobra.Command{
	Use:   "add ID FILE",
	Short: "Upload an image to an item",
	Args:  cobra.ExactArgs(2),
	RunE:  withSession(runItemsImageAdd),
}

var itemsImageRmCmd = &cobra.Command{
	Use:   "rm ID URL",
	Short: "Remove an image from an item",
	Args:  cobra.ExactArgs(2),
	RunE:  withSession(runItemsImageRm),
}

func init() {
	itemsListCmd.Flags().BoolVar(&itemsMine, "mine", false, "list your own items (needs login)")
	itemsListCmd.Flags().StringVar(&itemsFilter, "filter", "", "CEL filter expression")

	for _, c := range []*cobra.Command{itemsCreateCmd, itemsUpdateCmd} {
		c.Flags().StringVar(&itemName, "name", "", "item name")
		c.Flags().StringVar(&itemDescription, "description", "", "item description")
		c.Flags().StringVar(&itemType, "type", "", "book, tool, food, furniture or other")
		c.Flags().BoolVar(&itemTrade, "trade", false, "available for trade")
		c.Flags().BoolVar(&itemDonation, "donation", false, "available for donation")
	}
	itemsCreateCmd.Flags().StringArrayVar(&itemImages, "image", nil, "image file to upload (repeatable)")

	itemsImageCmd.AddCommand(itemsImageAddCmd, itemsImageRmCmd)
	itemsCmd.AddCommand(itemsListCmd, itemsShowCmd, itemsCreateCmd, itemsUpdateCmd, itemsDeleteCmd, itemsImageCmd)
	rootCmd.AddCommand(itemsCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}

// parseType accepts a type name in any case. Unknown names pass through
// unchanged so validation reports them.
func parseType(s string) item.Type {
	if t, ok := item.ParseType(s); ok {
		return t
	}
	return item.Type(s)
}

func readImage(path string) (item.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return item.Image{}, fmt.Errorf("read image: %w", err)
	}
	return item.Image{Filename: filepath.Base(path), Data: data}, nil
}

func runItemsList(cmd *cobra.Command, a *app, _ []string) error {
	filter, err := compileFilter(itemsFilter)
	if err != nil {
		return err
	}

	var items []item.Item
	if itemsMine {
		if err := a.requireSession(); err != nil {
			return err
		}
		items, err = a.items.ListMine(cmd.Context(), filter)
	} else {
		items, err = a.items.ListAvailable(cmd.Context(), filter)
	}
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), a.cfg.Output, items, itemsTable(items))
}

func runItemsShow(cmd *cobra.Command, a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	it, err := a.items.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), a.cfg.Output, it, itemTable(*it))
}

func runItemsCreate(cmd *cobra.Command, a *app, _ []string) error {
	images := make([]item.Image, 0, len(itemImages))
	for _, path := range itemImages {
		img, err := readImage(path)
		if err != nil {
			return err
		}
		images = append(images, img)
	}

	created, err := a.items.Create(cmd.Context(), item.Details{
		Name:          itemName,
		Description:   itemDescription,
		Type:          parseType(itemType),
		IsForTrade:    itemTrade,
		IsForDonation: itemDonation,
	}, images)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), a.cfg.Output, created, itemTable(*created))
}

func runItemsUpdate(cmd *cobra.Command, a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	current, err := a.items.GetOwned(cmd.Context(), id)
	if err != nil {
		return err
	}

	details := item.DetailsOf(*current)
	flags := cmd.Flags()
	if flags.Changed("name") {
		details.Name = itemName
	}
	if flags.Changed("description") {
		details.Description = itemDescription
	}
	if flags.Changed("type") {
		details.Type = parseType(itemType)
	}
	if flags.Changed("trade") {
		details.IsForTrade = itemTrade
	}
	if flags.Changed("donation") {
		details.IsForDonation = itemDonation
	}

	updated, err := a.items.Update(cmd.Context(), id, details)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), a.cfg.Output, updated, itemTable(*updated))
}

func runItemsDelete(cmd *cobra.Command, a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := a.items.Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Item %d deleted.\n", id)
	return nil
}

func runItemsImageAdd(cmd *cobra.Command, a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	img, err := readImage(args[1])
	if err != nil {
		return err
	}
	updated, err := a.items.AddImage(cmd.Context(), id, img)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), a.cfg.Output, updated, itemTable(*updated))
}

func runItemsImageRm(cmd *cobra.Command, a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := a.items.DeleteImage(cmd.Context(), id, args[1]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Image removed.")
	return nil
}
