/*
Package graph models a workflow document: an ordered mapping from node
identifiers to node records, each carrying a kind tag ("class_type") and named
sections of input values.

Documents are values. Load and Parse build them from JSON or YAML sources,
Clone produces a structural deep copy, and Patch applies a sequence of
domain.ParameterUpdate values onto a copy without touching its input.

	doc, err := graph.Load("workflows/text_to_video.json")
	if err != nil {
		return err
	}
	patched, report := graph.Patch(doc, []domain.ParameterUpdate{
		{NodeID: "52", Section: "inputs", Field: "steps", Value: int64(12)},
	})
	for _, skipped := range report.Skipped {
		log.Printf("skipped %s: %s", skipped.Update.Path(), skipped.Reason)
	}
*/
package graph
