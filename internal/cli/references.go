package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gagyebu/internal/core"
	"gagyebu/internal/remote"
)

// referenceCmd manages one reference list: categories or payment methods.
// References are named by id or by label.
func (app *App) referenceCmd(kind core.ReferenceKind, use, label string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Manage %s labels (%s)", use, label),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List " + string(kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := app.Connect(app.settings, app.logger)
			if err != nil {
				return err
			}
			set, err := api.References(cmd.Context(), kind)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLABEL")
			for _, ref := range set {
				fmt.Fprintf(tw, "%d\t%s\n", ref.ID, ref.Type)
			}
			return tw.Flush()
		},
	}

	add := &cobra.Command{
		Use:   "add LABEL",
		Short: "Add a " + use,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("%s label is empty", use)
			}
			api, err := app.Connect(app.settings, app.logger)
			if err != nil {
				return err
			}
			ref, err := api.CreateReference(cmd.Context(), kind, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "added %s %d: %s\n", use, ref.ID, ref.Type)
			return nil
		},
	}

	rename := &cobra.Command{
		Use:   "rename ID|LABEL NEW_LABEL",
		Short: "Rename a " + use,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[1])
			if name == "" {
				return fmt.Errorf("%s label is empty", use)
			}
			api, err := app.Connect(app.settings, app.logger)
			if err != nil {
				return err
			}
			ref, err := findReference(cmd, api, kind, args[0])
			if err != nil {
				return err
			}
			if ref.Type == name {
				fmt.Fprintf(app.Out, "%s %d unchanged\n", use, ref.ID)
				return nil
			}
			renamed, err := api.RenameReference(cmd.Context(), kind, ref.ID, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "renamed %s %d: %s -> %s\n", use, ref.ID, ref.Type, renamed.Type)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete ID|LABEL",
		Short: "Delete a " + use + " no record uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return fmt.Errorf("not deleting %s %q without --yes", use, args[0])
			}
			api, err := app.Connect(app.settings, app.logger)
			if err != nil {
				return err
			}
			ref, err := findReference(cmd, api, kind, args[0])
			if err != nil {
				return err
			}
			err = api.DeleteReference(cmd.Context(), kind, ref.ID)
			if errors.Is(err, remote.ErrConflict) {
				return fmt.Errorf("%s %q is still used by records: %w", use, ref.Type, err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "deleted %s %d: %s\n", use, ref.ID, ref.Type)
			return nil
		},
	}
	del.Flags().BoolP("yes", "y", false, "confirm the deletion")

	cmd.AddCommand(list, add, rename, del)
	return cmd
}

func findReference(cmd *cobra.Command, api remote.ReferenceReader, kind core.ReferenceKind, arg string) (core.Reference, error) {
	set, err := api.References(cmd.Context(), kind)
	if err != nil {
		return core.Reference{}, err
	}
	if id, err := core.ParseID(arg); err == nil {
		if ref, ok := set.ByID(id); ok {
			return ref, nil
		}
	}
	if ref, ok := set.Lookup(strings.TrimSpace(arg)); ok {
		return ref, nil
	}
	return core.Reference{}, fmt.Errorf("no %s %q: %w", kind, arg, remote.ErrNotFound)
}
