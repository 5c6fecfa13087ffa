package apply

import (
	"context"
	"encoding/json"
	"fmt"

	"duplicator/internal/gql"
	"duplicator/internal/index"
)

const publishablePublishMutation = `
mutation PublishablePublish($id: ID!, $input: [PublicationInput!]!) {
  publishablePublish(id: $id, input: $input) {
    userErrors { field message }
  }
}`

const publishableUnpublishMutation = `
mutation PublishableUnpublish($id: ID!, $input: [PublicationInput!]!) {
  publishableUnpublish(id: $id, input: $input) {
    userErrors { field message }
  }
}`

// syncPublications makes entityID's published channel set match
// sourceChannelNames: it unpublishes from every destination channel the
// index knows about, then publishes to those matching the source's set.
// This is idempotent regardless of the destination's prior state, per
// §4.6's "Batching" paragraph.
func syncPublications(ctx context.Context, client *gql.Client, idx *index.Index, entityID string, sourceChannelNames []string) error {
	all := idx.AllPublications()
	if len(all) == 0 {
		return nil
	}

	unpublishInput := make([]map[string]string, 0, len(all))
	for _, id := range all {
		unpublishInput = append(unpublishInput, map[string]string{"publicationId": id})
	}
	if err := doPublicationMutation(ctx, client, publishableUnpublishMutation, entityID, unpublishInput); err != nil {
		return fmt.Errorf("unpublish: %w", err)
	}

	var publishInput []map[string]string
	for _, name := range sourceChannelNames {
		if id, ok := all[name]; ok {
			publishInput = append(publishInput, map[string]string{"publicationId": id})
		}
	}
	if len(publishInput) == 0 {
		return nil
	}
	if err := doPublicationMutation(ctx, client, publishablePublishMutation, entityID, publishInput); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func doPublicationMutation(ctx context.Context, client *gql.Client, mutation, entityID string, input []map[string]string) error {
	vars := map[string]any{"id": entityID, "input": input}
	data, err := client.Do(ctx, mutation, vars)
	if err != nil {
		return err
	}
	var parsed struct {
		PublishablePublish   *userErrorsPayload `json:"publishablePublish"`
		PublishableUnpublish *userErrorsPayload `json:"publishableUnpublish"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	for _, p := range []*userErrorsPayload{parsed.PublishablePublish, parsed.PublishableUnpublish} {
		if p != nil && len(p.UserErrors) > 0 {
			return fmt.Errorf("%s", p.UserErrors[0].Message)
		}
	}
	return nil
}

type userErrorsPayload struct {
	UserErrors []struct {
		Field   []string `json:"field"`
		Message string   `json:"message"`
	} `json:"userErrors"`
}
