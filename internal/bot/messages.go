package bot

import (
	"fmt"
	"strconv"
)

// Fixed reply texts.
const (
	FallbackText         = "Esto es nuevo para mi, no he entendido lo que quieres decir 🤔"
	DegradedText         = "Lo siento, el servicio no está disponible en este momento. Intenta de nuevo más tarde."
	SuggestedActionsText = "Estos son algunos ejemplos de lo que puedes decir"
)

// SuggestedActions are the quick replies offered to newly added members.
var SuggestedActions = []string{"¿Que es un bot?", "¿Cuál es su telefono?"}

// GreetingText is sent once per conversation on the first user message.
func GreetingText(userName string) string {
	return fmt.Sprintf("%s, te recuerdo que siempre puedes estar pendiente de nuestras "+
		"últimas ofertas y promociones desde nuestra página en Facebook.", userName)
}

// WelcomeText greets a member who joined the conversation.
func WelcomeText(memberName string) string {
	return fmt.Sprintf("Hola %s 😀!  Mi nombre es ChopiBot, estoy para contestar preguntas "+
		"que tengas acerca de nuestra tienda o nuestros productos.", memberName)
}

// DiagnosticText reports the top scoring intent.
func DiagnosticText(intent string, score float64) string {
	return fmt.Sprintf("LUIS Top Scoring Intent: %s, Score: %s", intent, strconv.FormatFloat(score, 'f', -1, 64))
}

// GenericText acknowledges an activity type the bot does not handle.
func GenericText(activityType string) string {
	return fmt.Sprintf("[%s event detected.]", activityType)
}
