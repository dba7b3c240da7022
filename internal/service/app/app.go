package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"secure_chat/internal/codec"
	"secure_chat/internal/config"
	"secure_chat/internal/model"
	"secure_chat/internal/protocol/chain"
	"secure_chat/internal/service/redis"
	"secure_chat/internal/utils/log"
)

type (
	App struct {
		cfg *config.Config

		app     *tview.Application
		chatbox *tview.TextView
		input   *tview.InputField

		api          *relayAPI
		redisService *redis.RedisService
		profiles     ProfileStore
		profile      *model.Profile

		conversation *Conversation

		conn    *websocket.Conn
		writeMu sync.Mutex
	}
)

func NewApp(cfg *config.Config, profiles ProfileStore, redis *redis.RedisService) *App {
	return &App{
		cfg:          cfg,
		app:          tview.NewApplication(),
		api:          newRelayAPI(cfg.ServerHost),
		profiles:     profiles,
		redisService: redis,
	}
}

func (c *App) Run(ctx context.Context, name string) {
	profile, signer, err := loadProfile(ctx, c.profiles, c.api, name, c.cfg.KeyPassphrase)
	if err != nil {
		log.Fatal("get profile info failed", zap.Error(err))
	}
	c.profile = profile

	self, err := uuid.Parse(profile.ProfileID)
	if err != nil {
		log.Fatal("bad profile id", zap.String("profile_id", profile.ProfileID), zap.Error(err))
	}

	keys := &cachedKeys{next: c.api, redisService: c.redisService}
	c.conversation = NewConversation(self, signer, keys, c.cfg.Expiry(), c.cfg.EnforceSecureChat)

	c.conn, err = c.api.initWebhook(profile.Name, c.cfg.FilterChat)
	if err != nil {
		log.Fatal("init webhook to server failed", zap.Error(err))
	}

	c.renderUI()
	go c.listenOnWebhook(ctx)
	if err := c.app.Run(); err != nil {
		log.Fatal("cannot init app", zap.Error(err))
	}
}

func (c *App) Stop() {
	c.app.Stop()
	if c.conn != nil {
		c.writeMu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.conn.Close()
	}
}

func (c *App) renderUI() {
	c.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.chatbox.SetBorder(true).SetTitle(fmt.Sprintf(" Chat as %s ", c.profile.Name))

	c.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	c.input.SetBorder(true).SetTitle(" New Message ")

	c.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := c.input.GetText()
		if text == "" {
			return
		}
		c.input.SetText("")

		go func(msg string) {
			if err := c.SendMessage(msg); err != nil {
				c.app.QueueUpdateDraw(func() {
					fmt.Fprintf(c.chatbox, "[red]Send message failed:[-] %s\n", tview.Escape(err.Error()))
				})
			}
		}(text)
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.chatbox, 0, 1, false).
		AddItem(c.input, 3, 0, true)

	c.app.SetRoot(layout, true).SetFocus(c.input)
}

func (c *App) listenOnWebhook(ctx context.Context) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug("chat web socket closed", zap.Error(err))
			c.conn.Close()
			c.app.QueueUpdateDraw(func() {
				fmt.Fprintf(c.chatbox, "[red]Disconnected from chat[-]\n")
			})
			return
		}

		p, err := codec.DecodePacket(data)
		if err != nil {
			log.Error("decode packet failed", zap.Error(err))
			continue
		}

		line, err := c.conversation.Handle(ctx, c, p)
		if err != nil {
			log.Error("receive message failed", zap.Error(err))
		}
		if line != nil {
			c.render(*line)
		}
	}
}

func (c *App) SendMessage(msg string) error {
	return c.conversation.Send(c, msg)
}

func (c *App) WritePacket(p codec.Packet) error {
	data, err := codec.EncodePacket(p)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *App) render(l Line) {
	c.app.QueueUpdateDraw(func() {
		fmt.Fprintln(c.chatbox, formatLine(l))
		c.chatbox.ScrollToEnd()
	})
}

func formatLine(l Line) string {
	text := tview.Escape(l.Text)
	if l.System {
		return fmt.Sprintf("[gray]%s[-]", text)
	}

	author := tview.Escape(l.Author)
	switch l.State {
	case chain.BrokenChain:
		return fmt.Sprintf("[red]%s: %s[-]", author, text)
	case chain.NotSecure:
		return fmt.Sprintf("[yellow]%s[-] [gray](not secure)[-]: %s", author, text)
	default:
		return fmt.Sprintf("[green]%s:[-] %s", author, text)
	}
}
