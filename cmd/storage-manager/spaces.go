package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/sharing"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/workspace"
	"github.com/spf13/cobra"
)

var errAccessTokenRequired = errors.New("--access-token is required with the hosted backend")

// workspaceCommand runs fn against the workspace of the identity named by the flags.
func workspaceCommand(identity *identityFlags, fn func(cmd *cobra.Command, args []string, current *workspace.Workspace) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := newApplication(true)
		if err != nil {
			return err
		}
		defer app.Close()

		token := strings.TrimSpace(identity.accessToken)
		var subject inventory.Identity
		switch {
		case token != "":
			claims, err := app.validator.ValidateToken(token)
			if err != nil {
				return err
			}
			subject = claims.Identity()
		case app.config.Embedded():
			subject = identity.identity()
		default:
			return errAccessTokenRequired
		}
		if app.users != nil {
			if _, err := app.users.Record(subject); err != nil {
				return err
			}
		}

		current, err := app.registry.Open(token, subject)
		if err != nil {
			return err
		}
		defer app.registry.Close(current.UserID())
		return fn(cmd, args, current)
	}
}

func printJSON(cmd *cobra.Command, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return err
}

func loadSpace(cmd *cobra.Command, current *workspace.Workspace, spaceID string) (inventory.Space, error) {
	if err := current.Spaces.FetchSpaces(cmd.Context()); err != nil {
		return inventory.Space{}, err
	}
	space, ok := current.Spaces.Space(spaceID)
	if !ok {
		return inventory.Space{}, fmt.Errorf("space %s not found", spaceID)
	}
	return space, nil
}

func newSpacesCommand() *cobra.Command {
	identity := &identityFlags{}
	cmd := &cobra.Command{
		Use:   "spaces",
		Short: "List and manage spaces",
	}
	identity.register(cmd, true)

	var location string
	addCmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a space owned by the current identity",
		Args:  cobra.ExactArgs(1),
		RunE: workspaceCommand(identity, func(cmd *cobra.Command, args []string, current *workspace.Workspace) error {
			user, _ := current.Session.User()
			owner := inventory.StringPtr(user.FullName)
			if owner == nil {
				owner = inventory.StringPtr(user.Email)
			}
			spaceID, err := current.Spaces.AddSpace(cmd.Context(), inventory.NewSpace{
				Name:     args[0],
				Location: inventory.StringPtr(location),
				OwnerID:  current.UserID(),
				Owner:    owner,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"id": spaceID})
		}),
	}
	addCmd.Flags().StringVar(&location, "location", "", "Where the space is")

	var role string
	shareCmd := &cobra.Command{
		Use:   "share SPACE_ID EMAIL",
		Short: "Invite an existing user into a space",
		Args:  cobra.ExactArgs(2),
		RunE: workspaceCommand(identity, func(cmd *cobra.Command, args []string, current *workspace.Workspace) error {
			if _, err := loadSpace(cmd, current, args[0]); err != nil {
				return err
			}
			notice := current.Sharer.Share(cmd.Context(), args[0], args[1], role)
			if err := printJSON(cmd, notice); err != nil {
				return err
			}
			if notice.Kind == sharing.KindError {
				return errors.New(notice.Message)
			}
			return nil
		}),
	}
	shareCmd.Flags().StringVar(&role, "role", inventory.RoleViewer, "Role to grant (viewer, editor)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the spaces visible to the current identity",
			Args:  cobra.NoArgs,
			RunE: workspaceCommand(identity, func(cmd *cobra.Command, args []string, current *workspace.Workspace) error {
				if err := current.Spaces.FetchSpaces(cmd.Context()); err != nil {
					return err
				}
				return printJSON(cmd, current.Spaces.Snapshot())
			}),
		},
		addCmd,
		&cobra.Command{
			Use:   "rename SPACE_ID NAME",
			Short: "Rename a space",
			Args:  cobra.ExactArgs(2),
			RunE: workspaceCommand(identity, func(cmd *cobra.Command, args []string, current *workspace.Workspace) error {
				space, err := loadSpace(cmd, current, args[0])
				if err != nil {
					return err
				}
				space.Name = args[1]
				if err := current.Spaces.UpdateSpace(cmd.Context(), space); err != nil {
					return err
				}
				updated, _ := current.Spaces.Space(space.ID)
				return printJSON(cmd, updated)
			}),
		},
		&cobra.Command{
			Use:   "remove SPACE_ID",
			Short: "Delete a space and everything in it",
			Args:  cobra.ExactArgs(1),
			RunE: workspaceCommand(identity, func(cmd *cobra.Command, args []string, current *workspace.Workspace) error {
				return current.Spaces.RemoveSpace(cmd.Context(), args[0])
			}),
		},
		&cobra.Command{
			Use:   "members SPACE_ID",
			Short: "List the members of a space, owner first",
			Args:  cobra.ExactArgs(1),
			RunE: workspaceCommand(identity, func(cmd *cobra.Command, args []string, current *workspace.Workspace) error {
				if _, err := loadSpace(cmd, current, args[0]); err != nil {
					return err
				}
				current.Spaces.FetchSpaceMembers(cmd.Context(), args[0])
				snapshot := current.Spaces.Snapshot()
				if message := snapshot.MemberErrors[args[0]]; message != "" {
					return errors.New(message)
				}
				return printJSON(cmd, snapshot.MembersBySpace[args[0]])
			}),
		},
		shareCmd,
		&cobra.Command{
			Use:   "permissions SPACE_ID",
			Short: "Show what the current identity may do with a space",
			Args:  cobra.ExactArgs(1),
			RunE: workspaceCommand(identity, func(cmd *cobra.Command, args []string, current *workspace.Workspace) error {
				if _, err := loadSpace(cmd, current, args[0]); err != nil {
					return err
				}
				capabilities, err := current.Capabilities(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, capabilities)
			}),
		},
	)
	return cmd
}
