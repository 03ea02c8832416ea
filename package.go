// Package analyst drives an LLM through a bounded, tool-calling conversation that answers
// analytics questions with safety-checked SQL.
//
// The root package holds the shared data model (turns, tool calls, budgets, answers) and the
// capability interfaces the loop depends on. Components live in subpackages:
//
//   - guard: rejects SQL that would pull unbounded or oversized data
//   - shaper: trims query results so they fit the per-result byte budget
//   - compaction: prunes the conversation to a fixed window
//   - toolchain: maps tool calls onto the query and export capabilities
//   - retry: backoff for rate limits, classification of provider errors
//   - termination: turns the final model text into a [FinalAnswer]
//   - executor: the orchestration loop that composes all of the above
//
// # Quick Start
//
//	pool, _ := sqlexec.NewPostgres(ctx, sqlexec.PostgresConfig{DSN: dsn})
//	model := models.NewAnthropic(client, anthropic.ModelClaudeSonnet4_5)
//
//	tools := toolchain.NewRegistry(toolchain.Config{}).
//	    Register(toolchain.NewQueryTool(guard.New(guard.Config{}), pool, shaper.New(shaper.Config{})))
//
//	exec, err := executor.New(executor.Config{
//	    Model:  model,
//	    Tools:  tools,
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//
//	result := exec.Run(ctx, "How many records were ingested yesterday?")
//	switch result.Outcome {
//	case analyst.OutcomeFinal:
//	    fmt.Println(result.Answer.Summary)
//	case analyst.OutcomeBudgetExceeded:
//	    fmt.Println("gave up:", result.Message)
//	}
//
// # Budgets
//
// Every run gets a fresh [Budget]. The executor checks it before each completion call and
// before each query dispatch; exhausting it ends the run with [OutcomeBudgetExceeded]
// instead of an error.
package analyst
