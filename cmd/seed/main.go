package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"community-hub/chatclient"
	"community-hub/domain"
	"community-hub/rest"
)

// Config defines the seeder environment variables. The password default is
// demo-only; every account it creates is throwaway.
type Config struct {
	ServerURL string `env:"SEED_SERVER_URL,default=http://localhost:8080"`
	Password  string `env:"SEED_PASSWORD,default=ComplexPass123!"`
}

type persona struct {
	email       string
	displayName string
}

type scriptLine struct {
	author    int
	community domain.CommunityID
	text      string
	withImage bool
}

var personas = []persona{
	{email: "zoe@demo.example.com", displayName: "Zoe"},
	{email: "ben@demo.example.com", displayName: "Ben"},
	{email: "maya@demo.example.com", displayName: "Maya"},
}

// Le script est joué dans l'ordre, une communauté à la fois
var script = []scriptLine{
	{author: 0, community: "general", text: "hey everyone, welcome to the hub"},
	{author: 1, community: "general", text: "anyone up for a study session tonight?"},
	{author: 2, community: "general", text: "count me in, library at 6"},
	{author: 0, community: "general", text: "here is the room map", withImage: true},
	{author: 1, community: "cs-101", text: "the quiz covers chapters 3 and 4"},
	{author: 2, community: "cs-101", text: "thanks, I completely missed that announcement"},
	{author: 0, community: "cs-101", text: "office hours moved to Thursday 2pm"},
}

func main() {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatal("Config error: ", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	fmt.Println("🚀 Community-Hub : Génération des données de démo...")

	outputDir := "./test_data"
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		panic(fmt.Sprintf("Impossible de créer le dossier : %v", err))
	}

	// 1. Génération d'une image PNG (pour la commande /attach)
	imgPath := filepath.Join(outputDir, "sample.png")
	genImage(imgPath)

	imageURI, err := rest.AttachImage(imgPath)
	if err != nil {
		log.Fatal("Error encoding seed image: ", err)
	}

	// 2. Inscription des comptes de démo
	tokens := make([]string, len(personas))
	for i, p := range personas {
		tokens[i] = registerOrLogin(ctx, config, p)
	}

	// 3. Connexion websocket de chaque compte
	clients := make([]*chatclient.Client, len(personas))
	for i := range personas {
		c, err := newSession(ctx, config.ServerURL, tokens[i])
		if err != nil {
			log.Fatalf("Session error for %s: %v", personas[i].displayName, err)
		}
		defer c.Close()
		clients[i] = c
	}

	// 4. Rejeu du script, en changeant de communauté quand la conversation change
	joined := make([]domain.CommunityID, len(personas))
	for _, line := range script {
		client := clients[line.author]
		p := personas[line.author]

		if joined[line.author] != line.community {
			if err := joinAndWait(ctx, client, line.community); err != nil {
				log.Fatalf("Join error for %s: %v", p.displayName, err)
			}
			joined[line.author] = line.community
		}

		req := domain.SendRequest{
			CommunityID: line.community,
			AuthorID:    p.email,
			DisplayName: p.displayName,
			Text:        line.text,
		}
		if line.withImage {
			req.Images = []string{imageURI}
		}
		if err := client.Send(req).Wait(ctx); err != nil {
			log.Fatalf("Send error for %s: %v", p.displayName, err)
		}
		fmt.Printf("💬 [%s] %s: %s\n", line.community, p.displayName, line.text)

		// Des timestamps serveur espacés rendent l'historique lisible
		time.Sleep(200 * time.Millisecond)
	}

	fmt.Println("\n✅ Prêt ! Lance le client de chat et tape /history pour voir la conversation")
}

// registerOrLogin creates the demo account, falling back to login when the
// seeder already ran against this relay.
func registerOrLogin(ctx context.Context, config Config, p persona) string {
	restClient := rest.NewClient(config.ServerURL + "/api")
	tok, err := restClient.Register(ctx, rest.RegisterRequest{
		Email:       p.email,
		DisplayName: p.displayName,
		Password:    config.Password,
	})
	if err == nil {
		fmt.Printf("👤 %s inscrit\n", p.displayName)
		return tok.Token
	}

	tok, err = restClient.Login(ctx, rest.LoginRequest{
		Email:    p.email,
		Password: config.Password,
	})
	if err != nil {
		log.Fatalf("Auth error for %s: %v", p.displayName, err)
	}
	fmt.Printf("👤 %s déjà inscrit, connexion\n", p.displayName)
	return tok.Token
}

// newSession opens a websocket connection and blocks until it is live.
func newSession(ctx context.Context, serverURL, token string) (*chatclient.Client, error) {
	cfg := chatclient.DefaultConfig(wsEndpoint(serverURL))
	cfg.Token = token
	cfg.Logger = logs.GetLoggerFromLevel(slog.LevelWarn)

	client, err := chatclient.New(cfg)
	if err != nil {
		return nil, err
	}

	statusCh := make(chan chatclient.StatusChange, 8)
	sub := client.OnStatusChange(func(change chatclient.StatusChange) {
		statusCh <- change
	})
	defer sub.Cancel()

	client.Connect()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case change := <-statusCh:
			if change.New == domain.StatusConnected {
				return client, nil
			}
			if change.New == domain.StatusError {
				client.Close()
				return nil, fmt.Errorf("connection failed: %v", change.Err)
			}
		case <-deadline:
			client.Close()
			return nil, fmt.Errorf("timeout waiting for connection")
		case <-ctx.Done():
			client.Close()
			return nil, ctx.Err()
		}
	}
}

// joinAndWait switches the session to a community and waits for the relay's
// history replay, which acknowledges the membership.
func joinAndWait(ctx context.Context, client *chatclient.Client, community domain.CommunityID) error {
	historyCh := make(chan chatclient.History, 4)
	sub := client.OnHistory(func(h chatclient.History) {
		historyCh <- h
	})
	defer sub.Cancel()

	client.JoinCommunity(community)
	deadline := time.After(5 * time.Second)
	for {
		select {
		case h := <-historyCh:
			if h.CommunityID == community {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("timeout joining %s", community)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// genImage crée un PNG de 800x600 pour illustrer la commande /attach
func genImage(path string) {
	width, height := 800, 600
	img := image.NewRGBA(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})

	// Remplissage avec un dégradé bleu pour le style
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			c := color.RGBA{uint8(x % 255), 100, 200, 0xff}
			img.Set(x, y, c)
		}
	}

	f, _ := os.Create(path)
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		fmt.Printf("❌ Erreur Image : %v\n", err)
	} else {
		fmt.Printf("📸 Image générée : %s\n", path)
	}
}

func wsEndpoint(serverURL string) string {
	ws := strings.Replace(serverURL, "https://", "wss://", 1)
	ws = strings.Replace(ws, "http://", "ws://", 1)
	return strings.TrimSuffix(ws, "/") + "/ws"
}
