package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/museumlab/dwelltrack/internal/emitter"
)

var emitKinds = []string{
	emitter.KindInteraction,
	emitter.KindRating,
	emitter.KindSelection,
	emitter.KindTransition,
}

type emitOptions struct {
	sessionID        string
	pageID           string
	eventType        string
	contentID        string
	artworkID        string
	rating           int
	selectionContext string
	action           string
}

func newEmitCmd(g *globals) *cobra.Command {
	opts := &emitOptions{}

	cmd := &cobra.Command{
		Use:   "emit [interaction|rating|selection|transition]",
		Short: "Send a single interaction event",
		Long: `Send one interaction, rating, selection or transition event for a session.

Run without arguments to choose the event and fill in its fields
interactively.

Examples:
  dwell emit interaction --event artwork-click --content 1234 --page index
  dwell emit rating --artwork 1234 --rating 4
  dwell emit selection --artwork 1234 --context search --action deselect
  dwell emit transition --session 1f0c6c1e-...`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: emitKinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind string
			if len(args) == 1 {
				kind = args[0]
			} else {
				var err error
				if kind, err = promptKind(); err != nil {
					return err
				}
			}

			if err := opts.complete(kind); err != nil {
				return err
			}

			ctx := cmd.Context()
			var reply []byte
			var sessionID string

			err := withTracking(ctx, g, func(rt *tracking) error {
				tab := rt.tab(g, opts.sessionID, nil)
				if err := tab.Resume(ctx); err != nil {
					return err
				}

				switch kind {
				case emitter.KindInteraction:
					if opts.pageID != "" {
						tab.InteractionOn(ctx, opts.pageID, opts.eventType, opts.contentID)
					} else {
						tab.Interaction(ctx, opts.eventType, opts.contentID)
					}
				case emitter.KindRating:
					tab.Rate(ctx, opts.artworkID, opts.rating)
				case emitter.KindSelection:
					tab.Select(ctx, opts.artworkID, opts.selectionContext, emitter.SelectionAction(opts.action), func(body []byte) {
						reply = body
					})
				case emitter.KindTransition:
					tab.Transition(ctx)
				}

				sessionID = tab.ID()
				return nil
			})
			if err != nil {
				return err
			}

			// Sends have completed by now; withTracking waits for them.
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s: %s event submitted\n", sessionID, kind)
			if reply != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Server replied: %s\n", strings.TrimSpace(string(reply)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.sessionID, "session", "s", "", "session id (default: new session)")
	cmd.Flags().StringVar(&opts.pageID, "page", "", "page the interaction happened on (default: session's current page)")
	cmd.Flags().StringVar(&opts.eventType, "event", "", "interaction event type, e.g. artwork-click")
	cmd.Flags().StringVar(&opts.contentID, "content", "", "content the interaction happened on")
	cmd.Flags().StringVar(&opts.artworkID, "artwork", "", "artwork id for rating or selection")
	cmd.Flags().IntVar(&opts.rating, "rating", 0, "rating number")
	cmd.Flags().StringVar(&opts.selectionContext, "context", "", "selection context")
	cmd.Flags().StringVar(&opts.action, "action", string(emitter.Select), "selection action: select or deselect")

	return cmd
}

// complete prompts for whatever kind needs and the flags did not supply.
func (o *emitOptions) complete(kind string) error {
	var err error
	switch kind {
	case emitter.KindInteraction:
		if o.eventType == "" {
			if o.eventType, err = promptText("Event type", true); err != nil {
				return err
			}
		}
		if o.contentID == "" {
			if o.contentID, err = promptText("Content id", false); err != nil {
				return err
			}
		}
	case emitter.KindRating:
		if o.artworkID == "" {
			if o.artworkID, err = promptText("Artwork id", true); err != nil {
				return err
			}
		}
		if o.rating == 0 {
			if o.rating, err = promptRating(); err != nil {
				return err
			}
		}
	case emitter.KindSelection:
		if o.artworkID == "" {
			if o.artworkID, err = promptText("Artwork id", true); err != nil {
				return err
			}
		}
		switch emitter.SelectionAction(o.action) {
		case emitter.Select, emitter.Deselect:
		default:
			return fmt.Errorf("invalid action %q: must be 'select' or 'deselect'", o.action)
		}
	case emitter.KindTransition:
	default:
		return fmt.Errorf("unknown event %q: must be one of %s", kind, strings.Join(emitKinds, ", "))
	}
	return nil
}

func promptKind() (string, error) {
	prompt := promptui.Select{
		Label: "Event to send",
		Items: emitKinds,
		Size:  len(emitKinds),
	}

	_, kind, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return "", err
	}
	return kind, nil
}

func promptText(label string, required bool) (string, error) {
	prompt := promptui.Prompt{Label: label}
	if required {
		prompt.Validate = func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("required")
			}
			return nil
		}
	}

	value, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func promptRating() (int, error) {
	prompt := promptui.Prompt{
		Label: "Rating",
		Validate: func(input string) error {
			if _, err := strconv.Atoi(strings.TrimSpace(input)); err != nil {
				return errors.New("must be a whole number")
			}
			return nil
		},
	}

	value, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(value))
}
