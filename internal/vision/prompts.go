package vision

// systemPrompt is stable across all submissions so it can sit in the
// provider-side prompt cache.
const systemPrompt = `You are a strict content moderator for a vehicle marketplace. You analyze listing photos of motor vehicles (cars, pickups, SUVs, motorcycles, trucks, vans). You always answer with a single valid JSON object and nothing else. Use null for any attribute you cannot determine from the photo.`

// coverPrompt evaluates the primary listing photo. The cover verdict is
// absolute: it decides whether the listing shows a real, policy-compliant
// motor vehicle at all.
const coverPrompt = `Analyze the attached photo, which a seller submitted as the MAIN photo of a vehicle listing.

The photo is VALID only if ALL of these hold:
- It clearly shows a real motor vehicle (car, pickup, SUV, motorcycle, truck or van).
- The vehicle is the main subject of the photo, not incidental background.
- It is an actual photograph, not a screenshot, drawing, render, meme, document or text image.
- It does not contain offensive, violent or sexual content.
- It is not a photo of a toy, scale model or video game.

Return a JSON object with exactly this shape:
{
  "isValid": true or false,
  "reason": "short explanation, empty string when valid",
  "confidence": 0.0 to 1.0,
  "details": {
    "brand": "...", "model": "...", "trim": "...", "year": "...",
    "color": "...", "vehicleType": "...", "transmission": "...",
    "fuel": "...", "engine": "...", "condition": "...",
    "features": ["..."]
  }
}

Fill "details" with everything you can read off the photo (badges, body style, generation). Use null for anything you cannot determine. Never guess the year more precisely than the photo supports; a range like "2018-2022" is acceptable.`

// tolerantAddendum is appended to the cover prompt on escalated retries.
// A submission only reaches a retry because earlier verdicts disagreed or
// failed, so the benefit of the doubt shifts toward the seller.
const tolerantAddendum = `

This photo was flagged as borderline by an earlier review. Lean toward accepting it: mark it invalid ONLY if it unambiguously violates one of the rules above. Poor lighting, partial framing or low resolution are NOT grounds for rejection.`

// extractPrompt pulls structured vehicle attributes out of the seller's
// free-text title and description. No images are involved; this is the
// model-backed path of the interpretation cascade.
const extractPrompt = `Extract vehicle attributes from this marketplace listing text. The text may be in Spanish or English.

Listing text:
%s

Return a JSON object with exactly this shape:
{
  "confidence": 0.0 to 1.0,
  "details": {
    "brand": "...", "model": "...", "trim": "...", "year": "...",
    "color": "...", "vehicleType": "...", "transmission": "...",
    "fuel": "...", "engine": "...", "condition": "...",
    "features": ["..."]
  }
}

Use null for anything the text does not state. Do not infer attributes the seller did not mention.`

// galleryPrompt checks secondary photos against the identity established
// by the cover photo. It never re-litigates whether the listing is a
// vehicle; it only checks consistency.
const galleryPrompt = `The main photo of this vehicle listing established the following vehicle identity:

%s

The attached photos are ADDITIONAL photos from the same listing, in order. For each one, decide if it is consistent with that identity. A photo is consistent when it plausibly shows the same vehicle (exterior from another angle, interior, engine bay, wheels, documents about the same vehicle). It is inconsistent when it clearly shows a different vehicle, a different brand or body style, or unrelated content.

Return a JSON object with exactly this shape:
{
  "results": [
    {"index": <photo number starting at 1>, "isValid": true or false, "reason": "short explanation, empty when consistent"}
  ]
}

Return one entry per attached photo, in order.`
