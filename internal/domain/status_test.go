package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStage(t *testing.T) {
	next, err := NextStage(ContractInitiation)
	require.NoError(t, err)
	assert.Equal(t, ContractPreparation, next)

	_, err = NextStage(ContractCompleted)
	assert.Error(t, err)
	_, err = NextStage("Drafting")
	assert.Error(t, err)
}

func TestValidContractTransition(t *testing.T) {
	assert.True(t, ValidContractTransition(ContractWireDetails, ContractInReview, false))
	assert.False(t, ValidContractTransition(ContractWireDetails, ContractSignatures, false))
	assert.True(t, ValidContractTransition(ContractWireDetails, ContractSignatures, true))
	assert.True(t, ValidContractTransition(ContractInReview, ContractPreparation, true))
	assert.False(t, ValidContractTransition(ContractCompleted, ContractInitiation, true))
	assert.False(t, ValidContractTransition(ContractInReview, ContractInReview, true))
	assert.False(t, ValidContractTransition("bogus", ContractInReview, true))
}

func TestProgress(t *testing.T) {
	assert.Equal(t, "0 of 0", Progress(nil))
	assert.Equal(t, "1 of 2", Progress([]Recipient{
		{Name: "Robert Chen", Status: RecipientSigned},
		{Name: "Eastside Properties", Status: RecipientPending},
	}))
}

func TestPartyNames(t *testing.T) {
	c := Contract{Parties: []Party{{Name: "John Doe", Role: "Buyer"}, {Name: "Jane Smith", Role: "Seller"}}}
	assert.Equal(t, []string{"John Doe", "Jane Smith"}, c.PartyNames())
	assert.True(t, SignatureFinal(SignatureVoided))
	assert.False(t, SignatureFinal(SignaturePending))
}

func TestSubtaskProgress(t *testing.T) {
	assert.Equal(t, "0 of 0", SubtaskProgress(nil))
	assert.Equal(t, "1 of 3", SubtaskProgress([]Subtask{{Completed: true}, {}, {}}))
}
