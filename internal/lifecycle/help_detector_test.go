package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstringHelpDetectorMatchesDefaults(t *testing.T) {
	detector := NewSubstringHelpDetector()

	assert.True(t, detector.IsHelpOffered("Espero haberte ayudado con tu consulta."))
	assert.True(t, detector.IsHelpOffered("listo, el problema queda RESUELTO"))
	assert.True(t, detector.IsHelpOffered("¿Te sirvió la información?"))
	assert.False(t, detector.IsHelpOffered("Déjame revisar tu cuenta un momento."))
	assert.False(t, detector.IsHelpOffered(""))
}

func TestSubstringHelpDetectorCustomMarkers(t *testing.T) {
	detector := NewSubstringHelpDetector("  Case Closed  ", "")

	assert.True(t, detector.IsHelpOffered("ok, CASE closed!"))
	// Custom markers replace the defaults entirely.
	assert.False(t, detector.IsHelpOffered("espero haberte ayudado"))
}

func TestSubstringHelpDetectorNilSafe(t *testing.T) {
	var detector *SubstringHelpDetector
	assert.False(t, detector.IsHelpOffered("problema resuelto"))
}
