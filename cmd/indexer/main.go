// Command indexer embeds the knowledge base documents and writes the index
// the assistant loads at startup.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/semilla-assistant/agent/knowledge"
	llmx "github.com/tanpawarit/semilla-assistant/agent/llm"
	configx "github.com/tanpawarit/semilla-assistant/pkg/config"
	_ "github.com/tanpawarit/semilla-assistant/pkg/logger/autoload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llmCfg := configx.MustNew[llmx.Config]("LLM")
	knowledgeCfg := configx.MustNew[knowledge.Config]("KNOWLEDGE")

	embedder, err := llmCfg.NewEmbedder()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create embedder")
	}

	log.Info().
		Str("docs_dir", knowledgeCfg.DocsDir).
		Str("index", knowledgeCfg.IndexPath).
		Str("model", embedder.Model()).
		Msg("building knowledge index")

	if !knowledge.New(*knowledgeCfg, embedder).Rebuild(ctx) {
		log.Fatal().Msg("knowledge index was not built")
	}
}
