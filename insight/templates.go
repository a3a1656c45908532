package insight

import (
	"time"

	"game-companion/model"
)

// Tab describes an insight tab a genre starts with
type Tab struct {
	ID          string
	Title       string
	Instruction string
}

// DiaryID is the tab every subject thread gets, whatever its genre
const DiaryID = "otaku-diary"

// DiaryTab is the personal diary. It is never generated.
var DiaryTab = Tab{
	ID:          DiaryID,
	Title:       "Otaku Diary",
	Instruction: "Personal game diary for tracking tasks and favorites.",
}

// DefaultGenre keys the template set used for genres without their own
const DefaultGenre = "default"

var storySoFar = Tab{
	ID:          "story_so_far",
	Title:       "Story So Far",
	Instruction: "Summarize the main plot events that happened strictly up to the estimated progress. Never mention or hint at future events. Write it like a journal of what already happened.",
}

// Templates maps a genre to the tabs instantiated for upgraded-tier threads
var Templates = map[string][]Tab{
	DefaultGenre: {
		storySoFar,
		{"missed_items", "Items You May Have Missed", "Identify 2-3 significant items, secrets or side quests the player may have overlooked in areas already visited. Hint at locations through landmarks without giving the solution."},
		{"game_lore", "Relevant Lore", "Give a detailed, spoiler-free piece of lore relevant to the player's current situation."},
		{"build_guide", "Build Guide", "Suggest one or two effective builds or loadouts using what is available up to the current progress point."},
		{"next_session_plan", "Plan Your Next Session", "List 3-4 concrete objectives for the next session, mixing main quests, side quests and areas to explore, each with a short reason."},
	},
	"Action RPG": {
		storySoFar,
		{"quest_log", "Active Quests", "Summarize the active main quest and suggest 2-3 side quests available in the current area."},
		{"build_optimization", "Build Optimization", "Suggest 2-3 specific improvements to stats, weapon affinities or spells that fit the player's build."},
		{"boss_strategy", "Upcoming Boss Strategy", "Give tactical advice for the next significant challenge without naming or describing the boss."},
		{"hidden_paths", "Hidden Paths & Secrets", "Hint at a nearby secret path through a clue tied to a landmark. No explicit directions."},
	},
	"First-Person Shooter": {
		storySoFar,
		{"loadout_analysis", "Loadout Analysis", "Suggest 2 alternative loadouts for the current situation and explain the advantage of each."},
		{"map_strategies", "Map Strategies", "Give 3 strategic tips for the current map: positioning, flanking routes, objective control."},
		{"enemy_intel", "Enemy Intel", "Describe upcoming threats by behavior and weakness without naming them."},
		{"pro_tips", "Pro Tips", "Offer 3 advanced tips a new player might not know."},
	},
	"Strategy": {
		storySoFar,
		{"current_board_state", "Current State Analysis", "Summarize strengths, weaknesses and immediate threats of the current game state."},
		{"opening_moves", "Opening Builds", "Describe 2-3 effective opening strategies for the player's faction or position."},
		{"unit_counters", "Unit Counters", "Describe likely enemy unit roles without naming them and suggest counters from the player's arsenal."},
		{"economy_guide", "Economy Management", "Give 3 tips for resource generation and spending at the current stage."},
	},
	"Simulation": {
		{"goal_suggestions", "Goal Suggestions", "Suggest 3 short-term goals and 1 long-term goal based on the current state."},
		{"efficiency_tips", "Efficiency & Optimization", "Give 3 actionable tips to make the current setup more efficient."},
		{"hidden_mechanics", "Hidden Mechanics", "Explain one non-obvious mechanic that matters for the player."},
		{"disaster_prep", "Disaster Prep", "Hint at a future challenge thematically and suggest 2-3 preventative measures."},
	},
	"Sports": {
		storySoFar,
		{"team_management", "Team Management", "Suggest 2-3 strategic improvements to the team composition."},
		{"training_focus", "Training Focus", "Recommend training priorities based on the team's strengths and weaknesses."},
		{"tactical_analysis", "Tactical Analysis", "Give tactical advice on formation, positioning and set pieces for the current situation."},
		{"season_progression", "Season Progression", "Outline objectives and milestones for the current phase of the season."},
	},
	"Racing": {
		storySoFar,
		{"vehicle_tuning", "Vehicle Tuning", "Suggest tuning adjustments for the current vehicle and upcoming tracks."},
		{"track_strategy", "Track Strategy", "Give braking points, racing lines and overtaking opportunities for current tracks."},
		{"race_craft", "Race Craft", "Offer advanced techniques: defensive driving, pit strategy, tire and fuel management."},
		{"championship_focus", "Championship Focus", "Outline priorities for the current championship."},
	},
	"Fighting": {
		storySoFar,
		{"character_analysis", "Character Analysis", "Analyze the current character's strengths, weaknesses and combo routes."},
		{"matchup_strategy", "Matchup Strategy", "Give strategies against common opponents."},
		{"execution_training", "Execution Training", "Suggest training routines to improve execution and consistency."},
		{"tournament_prep", "Tournament Prep", "Outline preparation for competitive play."},
	},
	"Puzzle": {
		storySoFar,
		{"puzzle_patterns", "Puzzle Patterns", "Identify common puzzle patterns and systematic approaches to them."},
		{"logical_reasoning", "Logical Reasoning", "Offer techniques to break down complex puzzles and eliminate possibilities."},
		{"time_optimization", "Time Optimization", "Suggest ways to solve puzzles with less trial and error."},
		{"difficulty_progression", "Difficulty Progression", "Outline how to approach increasingly difficult puzzles."},
	},
	"Horror": {
		storySoFar,
		{"survival_strategies", "Survival Strategies", "Give survival tactics for the current situation and resource use."},
		{"enemy_behavior", "Enemy Behavior", "Analyze enemy patterns and how to avoid or exploit them."},
		{"atmosphere_navigation", "Atmosphere Navigation", "Offer ways to stay composed and use audio cues in tense situations."},
		{"resource_management", "Resource Management", "Suggest inventory and crafting priorities with limited supplies."},
	},
}

// TemplatesFor returns the template tabs of genre, or the default set
func TemplatesFor(genre string) []Tab {
	if tabs, ok := Templates[genre]; ok {
		return tabs
	}
	return Templates[DefaultGenre]
}

// Instantiate creates the tabs of a thread whose genre just became known.
// The diary tab is always added. Upgraded-tier threads also get the genre
// template tabs, each loading with the sentinel; those are returned so the
// caller can fill them with one batched generation. Existing tabs are never
// overwritten.
func Instantiate(conv model.Conversation, genre string, pro bool, now time.Time) (model.Conversation, []Tab) {
	out := conv.Clone()
	if out.Insights == nil {
		out.Insights = map[string]model.Insight{}
	}
	if _, ok := out.Insights[DiaryID]; !ok {
		out = Put(out, model.Insight{
			ID:          DiaryID,
			Title:       DiaryTab.Title,
			Status:      model.StatusLoaded,
			LastUpdated: now,
		})
	}
	if !pro {
		return out, nil
	}

	var pending []Tab
	for _, tab := range TemplatesFor(genre) {
		if _, ok := out.Insights[tab.ID]; ok {
			continue
		}
		out = Put(out, model.Insight{
			ID:          tab.ID,
			Title:       tab.Title,
			Content:     LoadingSentinel,
			Status:      model.StatusLoading,
			LastUpdated: now,
		})
		pending = append(pending, tab)
	}
	return out, pending
}
