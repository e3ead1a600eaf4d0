package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jmerrifield20/roster/pkg/client"
	"github.com/jmerrifield20/roster/pkg/editor"
	"github.com/spf13/cobra"
)

// ── profile ──────────────────────────────────────────────────────────────────

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit member profiles",
}

var profileFormat string

var profileShowCmd = &cobra.Command{
	Use:   "show [member-id]",
	Short: "Show your profile, or another member's",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var p *client.Profile
		if len(args) == 1 {
			p, err = c.FetchByID(cmd.Context(), args[0])
		} else {
			p, err = c.FetchSelf(cmd.Context())
		}
		if err != nil {
			return errors.New(client.Message(err))
		}
		if profileFormat == "json" {
			return printJSON(p)
		}
		printProfile(p)
		return nil
	},
}

func printProfile(p *client.Profile) {
	d := editor.DraftFromProfile(p)
	fmt.Printf("Name:      %s\n", p.DisplayName)
	if d.Nickname != "" {
		fmt.Printf("Nickname:  %s\n", d.Nickname)
	}
	if p.Email != "" {
		fmt.Printf("Email:     %s\n", p.Email)
	}
	year := d.Year
	if year == "" {
		year = "N/A"
	}
	fmt.Printf("Year:      %s\n", year)
	fmt.Printf("Interests: %s\n", strings.Join(d.Interests, ", "))
	fmt.Printf("Emojis:    %s\n", strings.Join(d.Emojis, " "))
	fmt.Printf("Picture:   %t\n", p.HasProfilePicture)
	if d.Bio != "" {
		fmt.Printf("\n%s\n", d.Bio)
	}
}

var (
	editNickname       string
	editYear           string
	editBio            string
	editAddInterests   []string
	editRemoveInterest []string
	editAddEmojis      []string
	editRemoveEmoji    []string
)

var profileEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit your profile",
	Long: `Edit loads your profile, applies the given changes and saves it.

  members profile edit --nickname Ames --year 2027
  members profile edit --add-interest Chess --remove-interest Running
  members profile edit --year ""          # clear the year`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := newClient()
		if err != nil {
			return err
		}
		sc, err := newSession(ctx, c)
		if err != nil {
			return err
		}

		ed := editor.New(c, sc, editor.WithCompletionDelay(0))
		defer ed.Close()
		if err := ed.Load(ctx); err != nil {
			return errors.New(ed.Snapshot().Error)
		}

		flags := cmd.Flags()
		if flags.Changed("nickname") {
			ed.SetNickname(editNickname)
		}
		if flags.Changed("year") {
			ed.SetYear(editYear)
		}
		if flags.Changed("bio") {
			ed.SetBio(editBio)
		}
		for _, v := range editRemoveInterest {
			if i := slices.Index(ed.Snapshot().Draft.Interests, v); i >= 0 {
				ed.RemoveInterest(i)
			}
		}
		for _, v := range editAddInterests {
			ed.AddInterest(v)
		}
		for _, v := range editRemoveEmoji {
			if i := slices.Index(ed.Snapshot().Draft.Emojis, v); i >= 0 {
				ed.RemoveEmoji(i)
			}
		}
		for _, v := range editAddEmojis {
			ed.AddEmoji(v)
		}

		if err := ed.Save(ctx); err != nil {
			return errors.New(ed.Snapshot().Error)
		}
		select {
		case ev := <-ed.Events():
			fmt.Printf("✓ %s\n\n", ed.Snapshot().Success)
			if ev.Profile != nil {
				printProfile(ev.Profile)
			}
		case <-time.After(5 * time.Second):
			fmt.Printf("✓ %s\n", editor.MsgSaved)
		}
		return nil
	},
}

func init() {
	profileShowCmd.Flags().StringVar(&profileFormat, "format", "text", "Output format: text or json")

	f := profileEditCmd.Flags()
	f.StringVar(&editNickname, "nickname", "", "Nickname shown in the directory")
	f.StringVar(&editYear, "year", "", "Year; empty or non-numeric clears it")
	f.StringVar(&editBio, "bio", "", "Bio (at most 500 characters)")
	f.StringSliceVar(&editAddInterests, "add-interest", nil, "Interest to add (repeatable)")
	f.StringSliceVar(&editRemoveInterest, "remove-interest", nil, "Interest to remove (repeatable)")
	f.StringSliceVar(&editAddEmojis, "add-emoji", nil, "Emoji badge to add (repeatable)")
	f.StringSliceVar(&editRemoveEmoji, "remove-emoji", nil, "Emoji badge to remove (repeatable)")

	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileEditCmd)
}

// ── picture ──────────────────────────────────────────────────────────────────

var pictureCmd = &cobra.Command{
	Use:   "picture",
	Short: "Manage profile pictures",
}

var pictureUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Replace your profile picture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		ed, err := loadEditor(cmd)
		if err != nil {
			return err
		}
		defer ed.Close()
		if err := ed.UploadPicture(cmd.Context(), filepath.Base(args[0]), f); err != nil {
			return errors.New(ed.Snapshot().Error)
		}
		fmt.Printf("✓ %s\n", ed.Snapshot().Success)
		return nil
	},
}

var pictureDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove your profile picture",
	RunE: func(cmd *cobra.Command, args []string) error {
		ed, err := loadEditor(cmd)
		if err != nil {
			return err
		}
		defer ed.Close()
		if !ed.HasPicture() {
			fmt.Println("You have no profile picture.")
			return nil
		}
		if err := ed.DeletePicture(cmd.Context()); err != nil {
			return errors.New(ed.Snapshot().Error)
		}
		fmt.Printf("✓ %s\n", ed.Snapshot().Success)
		return nil
	},
}

var pictureOut string

var pictureGetCmd = &cobra.Command{
	Use:   "get [member-id]",
	Short: "Download your picture, or another member's",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var pic *client.Picture
		if len(args) == 1 {
			pic, err = c.FetchPicture(cmd.Context(), args[0])
		} else {
			pic, err = c.FetchMyPicture(cmd.Context())
		}
		if err != nil {
			return errors.New(client.Message(err))
		}

		out := pictureOut
		if out == "" {
			out = "picture" + extFor(pic.ContentType)
		}
		if err := os.WriteFile(out, pic.Data, 0o644); err != nil {
			return err
		}
		fmt.Printf("✓ Saved %d bytes (%s) to %s\n", len(pic.Data), pic.ContentType, out)
		return nil
	},
}

func init() {
	pictureGetCmd.Flags().StringVarP(&pictureOut, "output", "o", "", "Output file (default picture.<ext>)")

	pictureCmd.AddCommand(pictureUploadCmd)
	pictureCmd.AddCommand(pictureDeleteCmd)
	pictureCmd.AddCommand(pictureGetCmd)
}

func loadEditor(cmd *cobra.Command) (*editor.Session, error) {
	c, err := newClient()
	if err != nil {
		return nil, err
	}
	sc, err := newSession(cmd.Context(), c)
	if err != nil {
		return nil, err
	}
	ed := editor.New(c, sc, editor.WithCompletionDelay(0))
	if err := ed.Load(cmd.Context()); err != nil {
		return nil, errors.New(ed.Snapshot().Error)
	}
	return ed, nil
}

func extFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
