package main

import (
	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/workspace"
	"github.com/spf13/cobra"
)

func newBoxesCommand() *cobra.Command {
	identity := &identityFlags{}
	cmd := &cobra.Command{
		Use:   "boxes",
		Short: "List and manage boxes and their items",
	}
	identity.register(cmd, true)

	var content, location string
	addCmd := &cobra.Command{
		Use:   "add SPACE_ID NAME",
		Short: "Create a box in a space",
		Args:  cobra.ExactArgs(2),
		RunE: workspaceCommand(identity, func(cmd *cobra.Command, args []string, current *workspace.Workspace) error {
			boxID, err := current.Boxes.AddBox(cmd.Context(), inventory.NewBox{
				SpaceID:  args[0],
				Name:     args[1],
				Location: inventory.StringPtr(location),
				Content:  inventory.StringPtr(content),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"id": boxID})
		}),
	}
	addCmd.Flags().StringVar(&content, "content", "", "Free text description of the contents")
	addCmd.Flags().StringVar(&location, "location", "", "Where the box is inside the space")

	var quantity int
	var description string
	addItemCmd := &cobra.Command{
		Use:   "add-item BOX_ID NAME",
		Short: "Add an item to a box",
		Args:  cobra.ExactArgs(2),
		RunE: workspaceCommand(identity, func(cmd *cobra.Command, args []string, current *workspace.Workspace) error {
			itemID, err := current.Items.AddItem(cmd.Context(), inventory.NewItem{
				BoxID:       args[0],
				Name:        args[1],
				Description: inventory.StringPtr(description),
				Quantity:    quantity,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"id": itemID})
		}),
	}
	addItemCmd.Flags().IntVar(&quantity, "quantity", 1, "How many of the item")
	addItemCmd.Flags().StringVar(&description, "description", "", "Item description")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list SPACE_ID",
			Short: "List the boxes of a space",
			Args:  cobra.ExactArgs(1),
			RunE: workspaceCommand(identity, func(cmd *cobra.Command, args []string, current *workspace.Workspace) error {
				if err := current.Boxes.FetchBoxes(cmd.Context(), args[0]); err != nil {
					return err
				}
				return printJSON(cmd, current.Boxes.Snapshot())
			}),
		},
		addCmd,
		&cobra.Command{
			Use:   "remove BOX_ID",
			Short: "Delete a box and its items",
			Args:  cobra.ExactArgs(1),
			RunE: workspaceCommand(identity, func(cmd *cobra.Command, args []string, current *workspace.Workspace) error {
				return current.Boxes.RemoveBox(cmd.Context(), args[0])
			}),
		},
		&cobra.Command{
			Use:   "items BOX_ID",
			Short: "List the items of a box",
			Args:  cobra.ExactArgs(1),
			RunE: workspaceCommand(identity, func(cmd *cobra.Command, args []string, current *workspace.Workspace) error {
				if err := current.Items.FetchItems(cmd.Context(), args[0]); err != nil {
					return err
				}
				return printJSON(cmd, current.Items.Snapshot())
			}),
		},
		addItemCmd,
	)
	return cmd
}
