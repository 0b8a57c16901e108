package cli

import (
	"github.com/spf13/cobra"

	"github.com/plaenen/shopcore/internal/catalog"
	"github.com/plaenen/shopcore/pkg/cqrs"
)

func newCategoriesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"category", "cat"},
		Short:   "Manage the category tree",
	}
	cmd.AddCommand(
		newCategoriesListCmd(opts),
		newCategoriesShowCmd(opts),
		newCategoriesCreateCmd(opts),
		newCategoriesDeleteCmd(opts),
	)
	return cmd
}

func newCategoriesListCmd(opts *rootOptions) *cobra.Command {
	var (
		page, perPage, level int
		orderBy              map[string]string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories page by page",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = opts.withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
		q := catalog.DisplayListCategoryQuery{
			Pagination: catalog.Pagination{Page: page, ItemsPerPage: perPage},
			OrderBy:    orderBy,
		}
		if cmd.Flags().Changed("level") {
			q.Level = &level
		}
		result, err := cqrs.DispatchAs[catalog.CategoryPage](cmd.Context(), e.app.Queries, q)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	})
	cmd.Flags().IntVar(&page, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&perPage, "per-page", catalog.DefaultItemsPerPage, "Items per page")
	cmd.Flags().IntVar(&level, "level", 0, "Only list categories at this tree level")
	cmd.Flags().StringToStringVar(&orderBy, "order", nil, "Sort fields, e.g. --order name=asc,createdAt=desc")
	return cmd
}

func newCategoriesShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one category",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			c, err := cqrs.DispatchAs[catalog.Category](cmd.Context(), e.app.Queries, catalog.DisplayCategoryQuery{ID: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), c)
		}),
	}
}

func newCategoriesCreateCmd(opts *rootOptions) *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a category, optionally under a parent",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		c, err := cqrs.DispatchAs[catalog.Category](cmd.Context(), e.app.Commands, catalog.CreateCategoryCommand{
			Name:     args[0],
			ParentID: parent,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), c)
	})
	cmd.Flags().StringVar(&parent, "parent", "", "Parent category ID")
	return cmd
}

func newCategoriesDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a category without children",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			_, err := e.app.Commands.Dispatch(cmd.Context(), catalog.DeleteCategoryCommand{ID: args[0]})
			return err
		}),
	}
}
