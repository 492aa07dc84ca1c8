package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/PaulBabatuyi/houseye/internal/data"
	"github.com/PaulBabatuyi/houseye/internal/store"
)

var errUsage = errors.New("invalid usage")

const usage = `commands:
  init                              ensure indexes exist
  users                             list users
  add-user <name> <image> [phone]   register a user
  delete-user <name> <image>        remove a user and their image
  status <name> In|Out              set presence
  images                            list stored images
  upload <path>                     store a local image
  snapshot <url> <path>             fetch a camera snapshot and store it
  chat <user> <user>                open a chat between two users
  send <from> <to> <message...>     send a chat message
  history <user> <user>             print a conversation
  chats <user>                      list a user's conversations
`

type app struct {
	store     store.Store
	out       io.Writer
	snapshots *snapshotClient
}

func newApp(s store.Store, out io.Writer) *app {
	return &app{store: s, out: out, snapshots: newSnapshotClient()}
}

func (a *app) run(ctx context.Context, args []string) error {
	cmd, args := args[0], args[1:]
	switch cmd {
	case "init":
		// store.Open already ensured the indexes
		fmt.Fprintln(a.out, "ok")
		return nil
	case "users":
		return a.users(ctx)
	case "add-user":
		return a.addUser(ctx, args)
	case "delete-user":
		return a.deleteUser(ctx, args)
	case "status":
		return a.status(ctx, args)
	case "images":
		return a.images(ctx)
	case "upload":
		if len(args) != 1 {
			return errUsage
		}
		return a.upload(ctx, args[0])
	case "snapshot":
		return a.snapshot(ctx, args)
	case "chat":
		if len(args) != 2 {
			return errUsage
		}
		chat, err := a.store.CreateChat(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "chat %s created\n", chat.ID.Hex())
		return nil
	case "send":
		if len(args) < 3 {
			return errUsage
		}
		_, err := a.store.SendMessage(ctx, args[0], args[1], strings.Join(args[2:], " "))
		return err
	case "history":
		return a.history(ctx, args)
	case "chats":
		return a.chats(ctx, args)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *app) users(ctx context.Context) error {
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tCELLPHONE\tSTATUS\tIMAGE")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.Username, u.Cellphone, u.Status, u.Image)
	}
	return tw.Flush()
}

func (a *app) addUser(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errUsage
	}
	var phone string
	if len(args) == 3 {
		phone = args[2]
	}
	u, err := a.store.AddUser(ctx, args[0], phone, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "user %s added\n", u.Username)
	return nil
}

func (a *app) deleteUser(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	res, err := a.store.DeleteUser(ctx, args[0], args[1])
	if res != nil {
		fmt.Fprintf(a.out, "users deleted: %d, image deleted: %t\n", res.UsersDeleted, res.ImageDeleted)
	}
	return err
}

func (a *app) status(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	st := data.Status(args[1])
	if !st.Valid() {
		return fmt.Errorf("%w: status must be In or Out", errUsage)
	}
	return a.store.SetStatus(ctx, args[0], st)
}

func (a *app) images(ctx context.Context) error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tSIZE\tSHA256")
	for b, err := range a.store.ListImages(ctx) {
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", b.Path, b.Size, b.Metadata.SHA256)
	}
	return tw.Flush()
}

func (a *app) upload(ctx context.Context, path string) error {
	b, err := a.store.AddImage(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "stored %s (%d bytes)\n", b.Path, b.Size)
	return nil
}

func (a *app) snapshot(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	if err := a.snapshots.Fetch(ctx, args[0], args[1]); err != nil {
		return err
	}
	return a.upload(ctx, args[1])
}

func (a *app) history(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	msgs, err := a.store.LoadChat(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	for _, m := range msgs {
		fmt.Fprintf(a.out, "[%s] %s: %s\n", m.Date, m.Sender, m.Text)
	}
	return nil
}

func (a *app) chats(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	links, err := a.store.ListChats(ctx, args[0])
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WITH\tSINCE\tLAST MESSAGE")
	for _, l := range links {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", l.Receiver, l.CreatedTime, l.LastMessage)
	}
	return tw.Flush()
}
