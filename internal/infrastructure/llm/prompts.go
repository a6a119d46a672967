package llm

import (
	"fmt"
	"strings"
)

func geoPrompt(title, snippet string) string {
	return fmt.Sprintf(`Analyze the eligible and excluded geographic locations for the following funding opportunity.

Tasks:
1. Identify all specific countries, regions (e.g., "East Africa", "Sub-Saharan Africa", "MENA"), and global designators ("Global", "International", "Developing Countries") that are ELIGIBLE.
2. Identify any specific countries or regions that are EXPLICITLY EXCLUDED.

Your response MUST be a valid JSON object with two keys: "eligible" and "excluded". Each key should contain a list of strings. If no locations are found for a key, provide an empty list. Do not add any text outside the JSON object.

Example for a grant open to East Africa but not Somalia:
{
  "eligible": ["East Africa"],
  "excluded": ["Somalia"]
}

Example for a grant for Nigeria only:
{
  "eligible": ["Nigeria"],
  "excluded": []
}

Opportunity Title: %s
Opportunity Content: %s`, title, snippet)
}

func enrichmentPrompt(title, snippet string, focusAreas []string) string {
	return fmt.Sprintf(`You are a data analyst. For the following funding opportunity, perform these tasks:
1. Focus Areas: From this list ONLY: %s, select the 2-3 MOST RELEVANT focus areas that best match the opportunity's primary objectives. Do not select more than 3 areas. Prioritize the most specific and directly applicable areas.
2. Funding Amount: Extract the specific funding amount or range (e.g., "$10,000", "up to €50,000"). If not clearly specified, state "Not Specified".
3. Funder: Identify the primary organization providing the funds (e.g., "Ford Foundation", "USAID"). If not clearly specified, state "Not Specified".
4. Deadline: Scrutinize the text for any mention of an application closing date or deadline.
   - If you find a specific date (e.g., "March 31, 2025", "24 April", "Closes on Thursday, Sep 5th"), extract it and format it STRICTLY as YYYY-MM-DD. Ignore times of day.
   - If the text explicitly states the deadline is "rolling", "ongoing", or reviewed "quarterly", your response for the deadline MUST be the string "Rolling".
   - If and ONLY IF no date or rolling deadline is mentioned anywhere, your response MUST be the string "Not Specified".
   - Prioritize finding a specific date over any other text.
5. Summary: Write a clean, one-paragraph summary for an NGO audience.

YOUR RESPONSE MUST BE A VALID JSON OBJECT and nothing else. Do not include markdown fences.

The JSON object must have these five keys: "focus_areas" (a list of strings), "funding_amount" (a string), "funder" (a string), "deadline" (a string), and "summary" (a string).

Opportunity Title: %s
Opportunity Content: %s`, strings.Join(focusAreas, ", "), title, snippet)
}
