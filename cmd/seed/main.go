package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"troll/internal/config"
	"troll/internal/question"
	"troll/internal/store"
)

// corpus is the fixed question pool. Keep it at question.PoolSize entries;
// the rotator's reset cycle depends on the exact count.
var corpus = []question.Pair{
	{Question: "What is the capital of Australia?", Answer: "canberra"},
	{Question: "Which planet has the most moons?", Answer: "saturn"},
	{Question: "What is the largest desert on Earth?", Answer: "antarctica"},
	{Question: "Which animal's fingerprints are nearly identical to humans'?", Answer: "koala"},
	{Question: "What is the only metal that is liquid at room temperature?", Answer: "mercury"},
	{Question: "Which country invented tea bags?", Answer: "usa"},
	{Question: "What fruit was once called a love apple?", Answer: "tomato"},
	{Question: "Which bird can fly backwards?", Answer: "hummingbird"},
	{Question: "What is the smallest country in the world?", Answer: "vatican city"},
	{Question: "Which ocean is the deepest?", Answer: "pacific"},
	{Question: "What is the hottest planet in the solar system?", Answer: "venus"},
	{Question: "Which mammal lays eggs?", Answer: "platypus"},
	{Question: "What is the national animal of Scotland?", Answer: "unicorn"},
	{Question: "Which element has the chemical symbol K?", Answer: "potassium"},
	{Question: "What is the longest river in the world?", Answer: "nile"},
	{Question: "What color is a polar bear's skin?", Answer: "black"},
	{Question: "Which country has the most time zones?", Answer: "france"},
	{Question: "What is the only food that never spoils?", Answer: "honey"},
	{Question: "Which planet spins backwards?", Answer: "venus"},
	{Question: "What is the tallest mountain in the solar system?", Answer: "olympus mons"},
	{Question: "Which animal sleeps standing up?", Answer: "horse"},
	{Question: "What was the first toy advertised on television?", Answer: "mr potato head"},
	{Question: "Which country gifted the Statue of Liberty to the USA?", Answer: "france"},
	{Question: "What is the fastest land animal?", Answer: "cheetah"},
	{Question: "Which sea creature has three hearts?", Answer: "octopus"},
	{Question: "What is the largest organ of the human body?", Answer: "skin"},
	{Question: "Which fruit has its seeds on the outside?", Answer: "strawberry"},
	{Question: "What is the loudest animal on Earth?", Answer: "sperm whale"},
	{Question: "Which country eats the most chocolate per capita?", Answer: "switzerland"},
	{Question: "What is the only continent without reptiles or snakes?", Answer: "antarctica"},
	{Question: "Which planet is closest to the sun?", Answer: "mercury"},
	{Question: "What do pandas eat almost exclusively?", Answer: "bamboo"},
	{Question: "Which bird is the international symbol of peace?", Answer: "dove"},
	{Question: "What is the rarest blood type in humans?", Answer: "ab negative"},
	{Question: "Which city hosted the first modern Olympics?", Answer: "athens"},
	{Question: "What is the most abundant gas in Earth's atmosphere?", Answer: "nitrogen"},
	{Question: "Which animal can hold its breath the longest?", Answer: "cuvier's beaked whale"},
	{Question: "What vegetable was the first grown in space?", Answer: "potato"},
	{Question: "Which country has a flag that is not rectangular?", Answer: "nepal"},
	{Question: "What is the smallest bone in the human body?", Answer: "stapes"},
	{Question: "Which drink was invented by a pharmacist?", Answer: "coca cola"},
	{Question: "What is the driest place on Earth?", Answer: "atacama desert"},
	{Question: "Which animal has the longest lifespan?", Answer: "greenland shark"},
	{Question: "What is the currency of Japan?", Answer: "yen"},
	{Question: "Which fruit is known as the king of fruits?", Answer: "durian"},
	{Question: "What is the only mammal capable of true flight?", Answer: "bat"},
	{Question: "Which country invented pizza?", Answer: "italy"},
	{Question: "What is the largest island in the world?", Answer: "greenland"},
	{Question: "Which organ can regrow itself in the human body?", Answer: "liver"},
	{Question: "What is the coldest place on Earth?", Answer: "antarctica"},
	{Question: "Which insect can lift fifty times its own weight?", Answer: "ant"},
	{Question: "What was the first country to give women the vote?", Answer: "new zealand"},
	{Question: "Which planet has a day longer than its year?", Answer: "venus"},
	{Question: "What is the most spoken language in the world?", Answer: "mandarin"},
	{Question: "Which animal never sleeps?", Answer: "bullfrog"},
	{Question: "What is the hardest natural substance on Earth?", Answer: "diamond"},
	{Question: "Which country has the longest coastline?", Answer: "canada"},
	{Question: "What color is an airplane's black box?", Answer: "orange"},
	{Question: "Which fish can swim backwards?", Answer: "eel"},
	{Question: "What is the national dish of Spain?", Answer: "paella"},
	{Question: "Which planet has the strongest winds?", Answer: "neptune"},
	{Question: "What animal's milk is naturally pink?", Answer: "hippopotamus"},
	{Question: "Which country drinks the most coffee per capita?", Answer: "finland"},
	{Question: "What is the oldest known musical instrument?", Answer: "flute"},
	{Question: "Which bird has the largest wingspan?", Answer: "wandering albatross"},
	{Question: "What is the smallest planet in the solar system?", Answer: "mercury"},
	{Question: "Which metal is the best conductor of electricity?", Answer: "silver"},
	{Question: "What is the largest land carnivore?", Answer: "polar bear"},
	{Question: "Which country invented fireworks?", Answer: "china"},
	{Question: "What is the sweetest natural substance known?", Answer: "thaumatin"},
	{Question: "Which animal has rectangular pupils?", Answer: "goat"},
	{Question: "What is the capital of Canada?", Answer: "ottawa"},
	{Question: "Which gas gives soda its fizz?", Answer: "carbon dioxide"},
	{Question: "What is the longest word typed with only the left hand?", Answer: "stewardesses"},
}

func main() {
	_ = godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg := config.Load()

	if len(corpus) != question.PoolSize {
		log.Fatal().Int("have", len(corpus)).Int("want", question.PoolSize).Msg("corpus size mismatch")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connect failed")
	}
	defer client.Disconnect(ctx)

	st := store.NewMongo(client.Database(cfg.MongoDB), log)
	for i, pair := range corpus {
		if err := st.Set(ctx, question.Collection, strconv.Itoa(i), pair); err != nil {
			log.Fatal().Err(err).Int("index", i).Msg("seed failed")
		}
	}

	log.Info().Int("questions", len(corpus)).Msg("corpus seeded")
}
