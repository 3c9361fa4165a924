package main

import (
	"fmt"

	"combinelock.dev/node/node"
	"combinelock.dev/node/node/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPolicyCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage the policy book",
	}
	cmd.AddCommand(newPolicyPutCommand(opts))
	cmd.AddCommand(newPolicyGetCommand(opts))
	cmd.AddCommand(newPolicyListCommand(opts))
	cmd.AddCommand(newPolicyDeleteCommand(opts))
	return cmd
}

// withBook opens the book for one command and closes it afterwards.
func withBook(opts *RootOptions, fn func(*store.Book) error) error {
	book, err := opts.openBook()
	if err != nil {
		return err
	}
	defer book.Close()
	return fn(book)
}

func newPolicyPutCommand(opts *RootOptions) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "put <policy.json>",
		Short: "Store a policy under its commitment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := node.LoadPolicy(opts.provider(), args[0])
			if err != nil {
				return err
			}
			return withBook(opts, func(book *store.Book) error {
				c, err := book.PutPolicy(p, label)
				if err != nil {
					return err
				}
				opts.log.Info("policy stored", zap.Stringer("commitment", c), zap.String("label", label))
				resp := commitResponse(opts, p)
				resp.Label = label
				writeResp(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "name to resolve the policy by")
	return cmd
}

func newPolicyGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <commitment|label>",
		Short: "Show a stored policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBook(opts, func(book *store.Book) error {
				c, ok, err := book.Resolve(args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("unknown label %q", args[0])
				}
				p, _, found, err := book.GetPolicy(c)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("policy %s not in book", c)
				}
				resp := commitResponse(opts, p)
				pj := node.PolicyToJSON(p)
				resp.Policy = &pj
				writeResp(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}
}

func newPolicyListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBook(opts, func(book *store.Book) error {
				entries, err := book.List()
				if err != nil {
					return err
				}
				resp := Response{Ok: true, Entries: make([]EntryJSON, 0, len(entries))}
				for _, e := range entries {
					resp.Entries = append(resp.Entries, EntryJSON{Commitment: e.Commitment.String(), Label: e.Label, Size: e.Size})
				}
				writeResp(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}
}

func newPolicyDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <commitment|label>",
		Short: "Remove a stored policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBook(opts, func(book *store.Book) error {
				c, ok, err := book.Resolve(args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("unknown label %q", args[0])
				}
				if err := book.Delete(c); err != nil {
					return err
				}
				writeResp(cmd.OutOrStdout(), Response{Ok: true, Commitment: c.String()})
				return nil
			})
		},
	}
}
