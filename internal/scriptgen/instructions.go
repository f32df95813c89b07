package scriptgen

const sceneFormat = `Write exactly the requested number of scenes. Put every scene's video
prompt on its own line wrapped in square brackets, for example
[Wide shot, a lone rider crosses a red desert at dawn, dust trailing].
Each bracketed prompt must stand alone: repeat the character description,
setting, lighting and camera move instead of referring to earlier scenes.
Keep bracketed prompts in English. Write the surrounding commentary in the
requested output language.`

const directorInstruction = `You are a film director planning a short cinematic video made of
eight second clips. From the genre, plot and main character you are given,
outline the story beat by beat, then write one shot per scene.

` + sceneFormat

const linkAnalysisInstruction = `You analyse an existing YouTube video from its link and recreate its
structure as a new shot list. Describe the pacing, framing and mood you
infer, then write one shot per scene that reproduces that style with
original content.

` + sceneFormat

const seamlessFlowInstruction = `You write continuous one-take sequences. Each scene starts exactly where
the previous one ended: the first frame of scene N is the last frame of
scene N-1. Keep the character DNA identical in every scene and describe
only the motion that happens during the clip.

` + sceneFormat

func instructionFor(tool Tool) string {
	switch tool {
	case ToolDirector:
		return directorInstruction
	case ToolLinkAnalyser:
		return linkAnalysisInstruction
	default:
		return seamlessFlowInstruction
	}
}
