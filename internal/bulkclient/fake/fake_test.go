package fake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
)

func TestCreateMultipleAssignsIDs(t *testing.T) {
	server := NewServer()
	client := NewClient(server)

	result, err := client.CreateMultiple(context.Background(), "account", []bulkclient.Record{
		{"name": "Contoso"},
		{"name": "Fabrikam"},
	}, bulkclient.BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Len(t, result.IDs, 2)
	assert.NotEmpty(t, result.IDs[0])
	assert.NotEqual(t, result.IDs[0], result.IDs[1])
}

func TestUpdateMultipleFailsUnknownID(t *testing.T) {
	server := NewServer()
	client := NewClient(server)

	result, err := client.UpdateMultiple(context.Background(), "account", []bulkclient.Record{
		{"id": "missing", "name": "x"},
	}, bulkclient.BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	assert.Equal(t, "not-found", result.Errors[0].Code)
}

func TestRetrievePaginates(t *testing.T) {
	server := NewServer()
	client := NewClient(server)

	for i := 0; i < 5; i++ {
		_, err := client.CreateMultiple(context.Background(), "account", []bulkclient.Record{{"i": i}}, bulkclient.BatchOptions{})
		require.NoError(t, err)
	}

	page, err := client.Retrieve(context.Background(), "account", "", 2)
	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.Cookie)

	seen := len(page.Records)
	cookie := page.Cookie
	for page.HasMore {
		page, err = client.Retrieve(context.Background(), "account", cookie, 2)
		require.NoError(t, err)
		seen += len(page.Records)
		cookie = page.Cookie
	}
	assert.Equal(t, 5, seen)
}

func TestThrottleEveryReturnsThrottleError(t *testing.T) {
	server := NewServer()
	server.ThrottleEvery = 2
	client := NewClient(server)

	_, err1 := client.CreateMultiple(context.Background(), "account", []bulkclient.Record{{"a": 1}}, bulkclient.BatchOptions{})
	assert.NoError(t, err1)

	_, err2 := client.CreateMultiple(context.Background(), "account", []bulkclient.Record{{"a": 2}}, bulkclient.BatchOptions{})
	var throttleErr *bulkclient.ThrottleError
	assert.ErrorAs(t, err2, &throttleErr)
}

func TestTVPRaceFailsThenSucceeds(t *testing.T) {
	server := NewServer()
	server.TVPRaceEntity = "optionset"
	server.FailFirstN = 2
	client := NewClient(server)

	_, err := client.UpdateMultiple(context.Background(), "optionset", []bulkclient.Record{{"id": "1"}}, bulkclient.BatchOptions{})
	assert.Error(t, err)

	_, err = client.UpdateMultiple(context.Background(), "optionset", []bulkclient.Record{{"id": "1"}}, bulkclient.BatchOptions{})
	assert.Error(t, err)

	server.store("optionset").records["1"] = bulkclient.Record{"id": "1"}
	_, err = client.UpdateMultiple(context.Background(), "optionset", []bulkclient.Record{{"id": "1"}}, bulkclient.BatchOptions{})
	assert.NoError(t, err)
}

func TestAssociateAndDisassociate(t *testing.T) {
	server := NewServer()
	client := NewClient(server)
	assoc := bulkclient.Association{Relationship: "contact_account", FromID: "a1", ToEntity: "contact", ToID: "c1"}

	require.NoError(t, client.Associate(context.Background(), assoc))
	keys := server.Associations("account", "contact_account")
	assert.Len(t, keys, 1)

	require.NoError(t, client.Disassociate(context.Background(), assoc))
	keys = server.Associations("account", "contact_account")
	assert.Len(t, keys, 0)
}

func TestCloneSharesBackingStore(t *testing.T) {
	server := NewServer()
	client := NewClient(server)

	result, err := client.CreateMultiple(context.Background(), "account", []bulkclient.Record{{"name": "Contoso"}}, bulkclient.BatchOptions{})
	require.NoError(t, err)

	clone, err := client.Clone(context.Background())
	require.NoError(t, err)

	ok, err := clone.LookupByID(context.Background(), "account", result.IDs[0])
	require.NoError(t, err)
	assert.True(t, ok)
}
