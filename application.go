package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/imroc/req/v3"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/starcity-rp/whitelist-ticket-server/pkg/config"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/gateway"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/infra"
	"github.com/starcity-rp/whitelist-ticket-server/pkg/ticket"
)

const Version = "whitelist-ticket-server v1.0"

// whitelistRequest is the webhook payload from the community website. The
// website form predates this service and mixes German and English field
// names; the aliased pairs are reconciled here, older fields win.
type whitelistRequest struct {
	DiscordId  string `json:"discordId"`
	DiscordTag string `json:"discordTag"`
	CharName   string `json:"charName"`
	SteamHex   string `json:"steamHex"`
	Age        int    `json:"alter"`

	Experience string `json:"erfahrung"`
	HowFound   string `json:"howFound"`
	Motivation string `json:"motivation"`
	DeskItem   string `json:"deskItem"`

	Timezone        string      `json:"timezone"`
	WebsiteTicketId string      `json:"websiteTicketId"`
	Answers         []ticket.QA `json:"answers"`
}

type whitelistResponse struct {
	Ok        bool   `json:"ok"`
	CaseId    string `json:"caseId,omitempty"`
	ChannelId string `json:"channelId,omitempty"`
	Url       string `json:"url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Application wires the long-running loops and the http handlers together.
type Application struct {
	cfg     *config.Config
	guard   *ticket.Guard
	engine  *ticket.Engine
	session *gateway.Session
	http    *req.Client
	logger  *zap.SugaredLogger
}

func ProvideApplication(cfg *config.Config, guard *ticket.Guard, engine *ticket.Engine, session *gateway.Session, httpClient *req.Client, loggerFactory *infra.LoggerFactory) *Application {
	return &Application{
		cfg:     cfg,
		guard:   guard,
		engine:  engine,
		session: session,
		http:    httpClient,
		logger:  loggerFactory.Create("Application").Sugar(),
	}
}

func (a *Application) Run() {
	go a.guard.Run()
	go a.session.Run()
	go a.keepalive()
}

// keepalive pings our own health endpoint so the hosting platform does not
// idle the process between webhook calls.
func (a *Application) keepalive() {
	if a.cfg.SelfUrl == "" {
		a.logger.Infof("no SELF_URL set, keepalive disabled")
		return
	}

	ticker := time.NewTicker(time.Duration(*config.CFG.KeepaliveSeconds) * time.Second)
	defer ticker.Stop()

	a.logger.Infof("keepalive enabled url[%v]", a.cfg.SelfUrl)
	for range ticker.C {
		if _, err := a.http.R().Get(a.cfg.SelfUrl + "/health"); err != nil {
			a.logger.Warnf("keepalive ping failed %v", err)
		}
	}
}

func (a *Application) HandleHealth(c echo.Context) error {
	return c.String(http.StatusOK, a.cfg.BrandName+" bot alive")
}

func (a *Application) HandleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"version": Version})
}

// HandleWhitelist is the website's ticket creation entry point. The
// signature covers the raw body bytes, so the body is read before any
// parsing and verified with a constant-time compare.
func (a *Application) HandleWhitelist(c echo.Context) error {
	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, &whitelistResponse{Error: "unreadable body"})
	}

	if !a.validSignature(rawBody, c.Request().Header.Get("X-Signature")) {
		a.logger.Infof("webhook rejected, invalid signature from[%v]", c.RealIP())
		return c.JSON(http.StatusUnauthorized, &whitelistResponse{Error: "invalid signature"})
	}

	request := &whitelistRequest{}
	if err := json.Unmarshal(rawBody, request); err != nil {
		return c.JSON(http.StatusBadRequest, &whitelistResponse{Error: "invalid json"})
	}
	if request.CharName == "" {
		return c.JSON(http.StatusBadRequest, &whitelistResponse{Error: "charName required"})
	}

	// The website ticket id scopes retries of the same submission; without
	// one, a digest of applicant+subject stands in.
	scope := request.WebsiteTicketId
	if scope == "" {
		sum := sha256.Sum256([]byte(request.DiscordId + "|" + request.CharName))
		scope = hex.EncodeToString(sum[:8])
	}
	key := ticket.GuardKey("webhook", scope, request.DiscordId, request.CharName)
	admission := a.guard.Admit(key, a.cfg.WebhookCooldown())
	if !admission.Allowed {
		message := "duplicate ticket, try again later"
		if admission.Reason == ticket.ReasonInflight {
			message = "ticket creation already in progress"
		}
		return c.JSON(http.StatusConflict, &whitelistResponse{Error: message})
	}
	defer a.guard.Release(key)

	howFound := request.Experience
	if howFound == "" {
		howFound = request.HowFound
	}
	motivation := request.Motivation
	if motivation == "" {
		motivation = request.DeskItem
	}

	result, err := a.engine.Create(c.Request().Context(), &ticket.CreateRequest{
		ApplicantId:  request.DiscordId,
		ApplicantTag: request.DiscordTag,
		Form: &ticket.ApplicationForm{
			CharName:        request.CharName,
			Age:             request.Age,
			SteamHex:        request.SteamHex,
			DiscordTag:      request.DiscordTag,
			HowFound:        howFound,
			Motivation:      motivation,
			Timezone:        request.Timezone,
			WebsiteTicketId: request.WebsiteTicketId,
			Answers:         ticket.NormalizeAnswers(request.Answers),
		},
	})
	if err != nil {
		a.logger.Errorf("webhook creation failed applicant[%v] %v", request.DiscordId, err)
		return c.JSON(http.StatusInternalServerError, &whitelistResponse{Error: "server error"})
	}

	return c.JSON(http.StatusOK, &whitelistResponse{
		Ok:        true,
		CaseId:    result.CaseId,
		ChannelId: result.ChannelId,
		Url:       result.Url,
	})
}

func (a *Application) validSignature(rawBody []byte, signatureHex string) bool {
	if signatureHex == "" {
		return false
	}
	signature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), signature)
}
