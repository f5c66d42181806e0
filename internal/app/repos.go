package app

import (
	"gorm.io/gorm"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/repos"
)

type Repos struct {
	User            repos.UserRepo
	Conversation    repos.ConversationRepo
	ChatMessage     repos.ChatMessageRepo
	GrammarConcept  repos.GrammarConceptRepo
	ConceptMastery  repos.ConceptMasteryRepo
	ErrorPattern    repos.ErrorPatternRepo
	LanguageProfile repos.LanguageProfileRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:            repos.NewUserRepo(db, log),
		Conversation:    repos.NewConversationRepo(db, log),
		ChatMessage:     repos.NewChatMessageRepo(db, log),
		GrammarConcept:  repos.NewGrammarConceptRepo(db, log),
		ConceptMastery:  repos.NewConceptMasteryRepo(db, log),
		ErrorPattern:    repos.NewErrorPatternRepo(db, log),
		LanguageProfile: repos.NewLanguageProfileRepo(db, log),
	}
}
